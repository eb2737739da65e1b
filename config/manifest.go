package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Manifest is the on-disk list of requirements consumed with -f.  It
// may be YAML (.yaml/.yml) or TOML (.toml):
//
//	defaults:
//	  user: deploy
//	  lib_path: [/opt/tools/lib]
//	requirements:
//	  - host: app01
//	    library: inventory
//	    commands: [get_thing]
type Manifest struct {
	Defaults     ManifestDefaults `yaml:"defaults" toml:"defaults"`
	Requirements []Requirement    `yaml:"requirements" toml:"requirements"`
}

// ManifestDefaults fill Config fields that flags and the environment
// left unset.
type ManifestDefaults struct {
	User           string   `yaml:"user" toml:"user"`
	SSHKey         string   `yaml:"ssh_key" toml:"ssh_key"`
	KnownHosts     string   `yaml:"known_hosts" toml:"known_hosts"`
	StrictHostKey  bool     `yaml:"strict_hostkey" toml:"strict_hostkey"`
	LibPath        []string `yaml:"lib_path" toml:"lib_path"`
	TimeoutSeconds int      `yaml:"timeout" toml:"timeout"`
}

// LoadManifest reads and decodes the manifest at path, choosing the
// decoder from the file extension.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	m := &Manifest{}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(m); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), m)
		if err != nil {
			return nil, fmt.Errorf("manifest %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("manifest %s: unknown key %q", path, undecoded[0].String())
		}
	default:
		return nil, fmt.Errorf("manifest %s: unsupported extension %q (want .yaml, .yml or .toml)", path, ext)
	}

	for i, r := range m.Requirements {
		if strings.TrimSpace(r.Host) == "" {
			return nil, fmt.Errorf("manifest %s: requirements[%d].host is required", path, i)
		}
		if strings.TrimSpace(r.Library) == "" {
			return nil, fmt.Errorf("manifest %s: requirements[%d].library is required", path, i)
		}
	}
	return m, nil
}

// Apply copies the manifest's requirements into cfg and fills any
// field that is still at its zero or default value.
func (m *Manifest) Apply(cfg *Config) {
	cfg.Requirements = append(cfg.Requirements[:0], m.Requirements...)

	d := m.Defaults
	if cfg.User == "" {
		cfg.User = d.User
	}
	if cfg.SSHKeyPath == "" {
		cfg.SSHKeyPath = d.SSHKey
	}
	if cfg.KnownHostsPath == "" {
		cfg.KnownHostsPath = d.KnownHosts
	}
	if d.StrictHostKey {
		cfg.StrictHostKey = true
	}
	if len(d.LibPath) > 0 && slices.Equal(cfg.LibPath, DefaultLibPath()) {
		cfg.LibPath = append([]string(nil), d.LibPath...)
	}
	if d.TimeoutSeconds > 0 && cfg.Timeout == DefaultConnTimeout {
		cfg.Timeout = secondsDuration(d.TimeoutSeconds)
	}
}
