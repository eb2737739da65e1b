// Package config defines the runtime configuration for remotecap and
// provides helpers for parsing host targets and requirement manifests.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ncerr "remotecap/internal/errors"
	"remotecap/util"
)

// Config holds every tuneable for a single remotecap run.
type Config struct {
	// ── Requirement ──────────────────────────────────────────────────
	TargetSpec string   // raw [user@]host[:port] positional
	Library    string   // library to make available
	Commands   []string // optional subset of the library's commands
	Force      bool     // discard any existing connection first

	// ── Manifest ─────────────────────────────────────────────────────
	ManifestPath string        // -f: YAML or TOML requirement file
	Requirements []Requirement // loaded from ManifestPath

	// ── Remote ───────────────────────────────────────────────────────
	User         string   // default SSH user when the target has none
	LibPath      []string // remote library search path
	Timeout      time.Duration
	ProbeTimeout time.Duration
	NoDNS        bool

	// ── SSH ──────────────────────────────────────────────────────────
	SSHKeyPath     string
	SSHPassword    bool // true → prompt interactively
	UseSSHAgent    bool
	StrictHostKey  bool
	KnownHostsPath string

	// ── Actions ──────────────────────────────────────────────────────
	Invoke     string   // -x: command to run once ensured
	InvokeArgs []string // arguments after "--"
	List       bool     // print imported commands
	Stats      bool     // print metrics JSON

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LibPath:      DefaultLibPath(),
		Timeout:      DefaultConnTimeout,
		ProbeTimeout: DefaultProbeTimeout,
	}
}

// ── Targets ──────────────────────────────────────────────────────────

// Target is a parsed [user@]host[:port].
type Target struct {
	User string
	Host string
	Port int
}

// String renders the target back as [user@]host:port.
func (t Target) String() string {
	s := util.FormatAddr(t.Host, t.Port)
	if t.User != "" {
		s = t.User + "@" + s
	}
	return s
}

// targetRe matches [user@]host[:port].
var targetRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTarget extracts user, host, and port from a string such as
// "admin@app01.example.com:2222".  Port defaults to 22.
func ParseTarget(spec string) (Target, error) {
	m := targetRe.FindStringSubmatch(spec)
	if m == nil {
		return Target{}, fmt.Errorf("invalid host %q – expected [user@]host[:port]", spec)
	}
	t := Target{User: m[1], Host: m[2], Port: DefaultSSHPort}
	if m[3] != "" {
		port, err := strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return Target{}, fmt.Errorf("invalid port %q", m[3])
		}
		t.Port = port
	}
	if t.Host == "" {
		return Target{}, fmt.Errorf("host is required")
	}
	return t, nil
}

// ── Requirements ─────────────────────────────────────────────────────

// Requirement is one host/library pair to make available, as written
// in a manifest or assembled from positional arguments.
type Requirement struct {
	Host     string   `yaml:"host" toml:"host"`
	Library  string   `yaml:"library" toml:"library"`
	Commands []string `yaml:"commands,omitempty" toml:"commands,omitempty"`
	Force    bool     `yaml:"force,omitempty" toml:"force,omitempty"`
}

// AllRequirements returns the manifest requirements, or the single
// requirement given on the command line.
func (c *Config) AllRequirements() []Requirement {
	if len(c.Requirements) > 0 {
		return c.Requirements
	}
	return []Requirement{{
		Host:     c.TargetSpec,
		Library:  c.Library,
		Commands: c.Commands,
		Force:    c.Force,
	}}
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.ManifestPath == "" {
		if c.TargetSpec == "" {
			return &ncerr.ConfigError{
				Field:   "host",
				Message: "a target host is required",
				Hint:    "usage: remotecap [flags] <[user@]host[:port]> <library> [command...]",
			}
		}
		if c.Library == "" {
			return &ncerr.ConfigError{
				Field:   "library",
				Message: "a library name is required",
				Hint:    "pass the library name after the host",
			}
		}
	} else if len(c.Requirements) == 0 {
		return &ncerr.ConfigError{
			Field:   "file",
			Value:   c.ManifestPath,
			Message: "manifest lists no requirements",
		}
	}

	libs := make(map[string]string)
	for i, r := range c.AllRequirements() {
		err := validateRequirement(r)
		if err == nil {
			err = checkHostLibrary(libs, r)
		}
		if err != nil {
			if len(c.Requirements) > 0 {
				return fmt.Errorf("requirements[%d]: %w", i, err)
			}
			return err
		}
	}

	if c.Invoke != "" && !util.ValidCommandName(c.Invoke) {
		return &ncerr.ConfigError{Field: "invoke", Value: c.Invoke, Message: "not a valid command name"}
	}
	if c.Timeout < 0 {
		return &ncerr.ConfigError{Field: "timeout", Value: c.Timeout, Message: "must not be negative"}
	}
	if c.ProbeTimeout < 0 {
		return &ncerr.ConfigError{Field: "probe-timeout", Value: c.ProbeTimeout, Message: "must not be negative"}
	}
	if len(c.LibPath) == 0 {
		return &ncerr.ConfigError{
			Field:   "lib-path",
			Message: "library search path is empty",
			Hint:    "pass --lib-path or unset REMOTECAP_LIB_PATH",
		}
	}
	for _, dir := range c.LibPath {
		if !strings.HasPrefix(dir, "/") && !strings.HasPrefix(dir, "~/") {
			return &ncerr.ConfigError{
				Field:   "lib-path",
				Value:   dir,
				Message: "must be absolute or start with ~/",
			}
		}
	}
	if c.NoDNS {
		for _, r := range c.AllRequirements() {
			t, _ := ParseTarget(r.Host)
			if _, err := util.ResolveAddr(t.Host, t.Port, true); err != nil {
				return &ncerr.ConfigError{Field: "no-dns", Value: r.Host, Message: err.Error()}
			}
		}
	}
	return nil
}

// checkHostLibrary rejects a host listed again with a different library.
// A pooled connection carries one library, so the later entry would
// discard the session the earlier one just built.
func checkHostLibrary(seen map[string]string, r Requirement) error {
	prev, ok := seen[r.Host]
	if !ok {
		seen[r.Host] = r.Library
		return nil
	}
	if prev == r.Library {
		return nil
	}
	return &ncerr.ConfigError{
		Field:   "host",
		Value:   r.Host,
		Message: fmt.Sprintf("already listed with library %s", prev),
		Hint:    "a connection holds one library; list each host once or split the manifest",
	}
}

func validateRequirement(r Requirement) error {
	if _, err := ParseTarget(r.Host); err != nil {
		return &ncerr.ConfigError{Field: "host", Value: r.Host, Message: err.Error()}
	}
	if !util.ValidLibraryName(r.Library) {
		return &ncerr.ConfigError{
			Field:   "library",
			Value:   r.Library,
			Message: "not a valid library name",
			Hint:    "letters, digits, '.', '_' and '-' only",
		}
	}
	for _, name := range r.Commands {
		if !util.ValidCommandName(name) {
			return &ncerr.ConfigError{Field: "command", Value: name, Message: "not a valid command name"}
		}
	}
	return nil
}
