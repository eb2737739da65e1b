package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"remotecap/config"
)

// capture redirects the package output streams for one test.
func capture(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out, &errOut
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out, _ := capture(t)
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "remotecap ") {
		t.Errorf("version output = %q", out.String())
	}
}

// TestExecute_Help verifies --help (and no args) returns without error.
func TestExecute_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {}} {
		name := "no-args"
		if len(args) > 0 {
			name = args[0]
		}
		t.Run(name, func(t *testing.T) {
			_, errOut := capture(t)
			if err := Execute(context.Background(), args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(errOut.String(), "Usage:") {
				t.Error("usage text not printed")
			}
		})
	}
}

// TestExecute_DryRun verifies --dry-run validates and exits cleanly.
func TestExecute_DryRun(t *testing.T) {
	out, _ := capture(t)
	err := Execute(context.Background(), []string{
		"--dry-run", "-F", "deploy@app01:2222", "Lib", "Get-Thing", "put_thing",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "deploy@app01:2222\tLib\tGet-Thing,put_thing\tforce\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	capture(t)
	tests := []struct {
		name string
		args []string
	}{
		{"missing library", []string{"--dry-run", "app01"}},
		{"bad library", []string{"--dry-run", "app01", "../etc"}},
		{"bad command", []string{"--dry-run", "app01", "Lib", "rm -rf"}},
		{"relative lib path", []string{"--dry-run", "--lib-path", "lib", "app01", "Lib"}},
		{"no dns with name", []string{"--dry-run", "-n", "app01", "Lib"}},
		{"args without invoke", []string{"--dry-run", "app01", "Lib", "--", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Execute(context.Background(), tt.args); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

// TestExecute_InvalidFlags verifies unknown flags produce an error.
func TestExecute_InvalidFlags(t *testing.T) {
	capture(t)
	err := Execute(context.Background(), []string{"--nonexistent-flag"})
	if err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

// TestExecute_ManifestConflictsWithPositional verifies -f and a
// positional target cannot be combined.
func TestExecute_ManifestConflictsWithPositional(t *testing.T) {
	capture(t)
	err := Execute(context.Background(), []string{
		"-f", "hosts.yaml", "app01", "Lib", "--dry-run",
	})
	if err == nil {
		t.Fatal("expected error for -f with positional requirement")
	}
	if !strings.Contains(err.Error(), "conflicts with --file") {
		t.Errorf("error should mention the conflict: %v", err)
	}
}

// TestExecute_DryRunManifest verifies requirements are read from a
// manifest file.
func TestExecute_DryRunManifest(t *testing.T) {
	out, _ := capture(t)
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	manifest := `requirements:
  - host: app01
    library: deploy
  - host: admin@db01:2222
    library: pg
    commands: [backup]
`
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := Execute(context.Background(), []string{"--dry-run", "-f", path}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "app01\tdeploy\t*\nadmin@db01:2222\tpg\tbackup\n"
	if out.String() != want {
		t.Errorf("got %q, want %q", out.String(), want)
	}
}

// TestExecute_DryRunManifestHostConflict verifies a manifest naming one
// host with two libraries is rejected before connecting.
func TestExecute_DryRunManifestHostConflict(t *testing.T) {
	out, _ := capture(t)
	path := filepath.Join(t.TempDir(), "hosts.yaml")
	manifest := `requirements:
  - host: app01
    library: deploy
  - host: app01
    library: pg
`
	if err := os.WriteFile(path, []byte(manifest), 0o600); err != nil {
		t.Fatal(err)
	}

	err := Execute(context.Background(), []string{"--dry-run", "-f", path})
	if err == nil {
		t.Fatal("expected error for a host listed with two libraries")
	}
	if !strings.Contains(err.Error(), "already listed with library deploy") {
		t.Errorf("error should name the earlier library: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("nothing should be printed, got %q", out.String())
	}
}

// TestExecute_NumericHostUnreachable runs a full provisioning attempt
// against a closed local port.
func TestExecute_NumericHostUnreachable(t *testing.T) {
	capture(t)
	err := Execute(context.Background(), []string{
		"-n", "--probe-timeout", "1", "127.0.0.1:1", "Lib",
	})
	if err == nil {
		t.Fatal("expected an error for a closed port")
	}
	if !strings.Contains(err.Error(), "unreachable") {
		t.Errorf("error should report the host unreachable: %v", err)
	}
}

func TestParsePositional(t *testing.T) {
	cfg := config.New()
	cfg.Invoke = "Get-Thing"
	err := parsePositional(cfg, []string{"h1", "Lib", "Get-Thing", "a", "b c"}, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.TargetSpec != "h1" || cfg.Library != "Lib" {
		t.Errorf("target=%q library=%q", cfg.TargetSpec, cfg.Library)
	}
	if len(cfg.Commands) != 1 || cfg.Commands[0] != "Get-Thing" {
		t.Errorf("commands = %v", cfg.Commands)
	}
	if len(cfg.InvokeArgs) != 2 || cfg.InvokeArgs[1] != "b c" {
		t.Errorf("invoke args = %v", cfg.InvokeArgs)
	}
}
