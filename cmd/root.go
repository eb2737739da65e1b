// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"remotecap/config"
	"remotecap/internal/core"
	"remotecap/internal/metrics"
	"remotecap/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X remotecap/cmd.version=1.1.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Output streams; tests replace them.
var (
	stdout io.Writer = os.Stdout //nolint:gochecknoglobals
	stderr io.Writer = os.Stderr //nolint:gochecknoglobals
)

// Execute parses args and ensures the requested remote capabilities.
func Execute(ctx context.Context, args []string) error {
	cfg := config.New()
	config.LoadFromEnv(cfg)

	fs := flag.NewFlagSet("remotecap", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── requirement ──────────────────────────────────────────────
	fs.BoolVarP(&cfg.Force, "force", "F", cfg.Force, "Discard any cached connection and rebuild it")
	fs.StringVarP(&cfg.ManifestPath, "file", "f", cfg.ManifestPath, "Requirement manifest (.yaml, .yml or .toml)")
	fs.StringArrayVar(&cfg.LibPath, "lib-path", cfg.LibPath, "Remote library directory (repeatable, searched in order)")

	// ── actions ──────────────────────────────────────────────────
	fs.StringVarP(&cfg.Invoke, "invoke", "x", "", "Run an imported command; args after -- are passed to it")
	fs.BoolVar(&cfg.List, "list", false, "Print the imported commands")
	fs.BoolVar(&cfg.Stats, "stats", false, "Print connection metrics as JSON")

	var dryRun bool
	fs.BoolVar(&dryRun, "dry-run", false, "Validate and print the requirements without connecting")

	// ── connection ───────────────────────────────────────────────
	fs.StringVarP(&cfg.User, "user", "u", cfg.User, "Default SSH user")
	fs.BoolVarP(&cfg.NoDNS, "no-dns", "n", cfg.NoDNS, "Numeric-only, no DNS resolution")

	var timeoutSec, probeSec int
	fs.IntVarP(&timeoutSec, "timeout", "w", seconds(cfg.Timeout), "SSH connect timeout in seconds")
	fs.IntVar(&probeSec, "probe-timeout", seconds(cfg.ProbeTimeout), "Reachability probe timeout in seconds")

	// ── SSH ──────────────────────────────────────────────────────
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	envVerbose := cfg.Verbose
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp || len(args) == 0 {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "remotecap %s\n", version)
		return nil
	}

	// CountVarP resets to zero; keep the environment's level unless
	// -v was given.
	if !fs.Changed("verbose") {
		cfg.Verbose = envVerbose
	}
	if fs.Changed("timeout") {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}
	if fs.Changed("probe-timeout") {
		cfg.ProbeTimeout = time.Duration(probeSec) * time.Second
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args(), fs.ArgsLenAtDash()); err != nil {
		return err
	}

	// ── manifest ─────────────────────────────────────────────────
	if cfg.ManifestPath != "" {
		m, err := config.LoadManifest(cfg.ManifestPath)
		if err != nil {
			return err
		}
		m.Apply(cfg)
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dryRun {
		printRequirements(stdout, cfg)
		return nil
	}

	// ── build & run ──────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	logger.SetOutput(stderr)

	collector := metrics.New()
	mode, err := core.Build(cfg, logger, collector)
	if err != nil {
		return err
	}
	setStreams(mode)

	runErr := mode.Run(ctx)
	if cfg.Stats {
		fmt.Fprintln(stdout, collector.JSON())
	}
	return runErr
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional splits "host library [command...] [-- args...]".
// dash is the index of "--" in remaining, or -1.
func parsePositional(cfg *config.Config, remaining []string, dash int) error {
	before := remaining
	if dash >= 0 {
		before = remaining[:dash]
		cfg.InvokeArgs = append([]string(nil), remaining[dash:]...)
		if cfg.Invoke == "" && len(cfg.InvokeArgs) > 0 {
			return fmt.Errorf("arguments after -- need --invoke")
		}
	}

	if cfg.ManifestPath != "" {
		if len(before) > 0 {
			return fmt.Errorf("positional requirement %q conflicts with --file", strings.Join(before, " "))
		}
		return nil
	}

	if len(before) < 1 {
		return fmt.Errorf("host required (use --help for usage)")
	}
	cfg.TargetSpec = before[0]

	if len(before) < 2 {
		return fmt.Errorf("library required")
	}
	cfg.Library = before[1]
	cfg.Commands = append([]string(nil), before[2:]...)
	return nil
}

// setStreams points a mode's output at the package streams.
func setStreams(mode core.Mode) {
	switch m := mode.(type) {
	case *core.InvokeMode:
		m.Stdout = stdout
		m.Stderr = stderr
	case *core.EnsureMode:
		m.Stdout = stdout
	}
}

func printRequirements(w io.Writer, cfg *config.Config) {
	for _, r := range cfg.AllRequirements() {
		cmds := "*"
		if len(r.Commands) > 0 {
			cmds = strings.Join(r.Commands, ",")
		}
		force := ""
		if r.Force || cfg.Force {
			force = "\tforce"
		}
		fmt.Fprintf(w, "%s\t%s\t%s%s\n", r.Host, r.Library, cmds, force)
	}
}

func seconds(d time.Duration) int {
	return int(d / time.Second)
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `remotecap – remote capability provisioner v%s

Opens (or reuses) an SSH session to a host and makes a remote shell
library's commands available through it.

Usage:
  remotecap [options] <[user@]host[:port]> <library> [command...]
  remotecap [options] -x <command> <host> <library> [command...] -- [args...]
  remotecap [options] -f requirements.yaml

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Examples:
  remotecap app01 deploy                          Load deploy.sh on app01
  remotecap --list admin@app01:2222 deploy        Show imported commands
  remotecap -x rollout app01 deploy -- v1.4.2     Run rollout v1.4.2
  remotecap -f hosts.yaml --stats                 Ensure a manifest
`)
}
