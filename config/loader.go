package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the REMOTECAP_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("REMOTECAP_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("REMOTECAP_LIB_PATH"); v != "" {
		cfg.LibPath = splitPath(v)
	}
	if v := envInt("REMOTECAP_TIMEOUT"); v > 0 {
		cfg.Timeout = secondsDuration(v)
	}
	if v := envInt("REMOTECAP_PROBE_TIMEOUT"); v > 0 {
		cfg.ProbeTimeout = secondsDuration(v)
	}
	if envBool("REMOTECAP_NO_DNS") {
		cfg.NoDNS = true
	}
	if envBool("REMOTECAP_FORCE") {
		cfg.Force = true
	}
	if v := os.Getenv("REMOTECAP_FILE"); v != "" {
		cfg.ManifestPath = v
	}

	// SSH
	if v := os.Getenv("REMOTECAP_SSH_KEY"); v != "" {
		cfg.SSHKeyPath = v
	}
	if envBool("REMOTECAP_SSH_PASSWORD") {
		cfg.SSHPassword = true
	}
	if envBool("REMOTECAP_SSH_AGENT") {
		cfg.UseSSHAgent = true
	}
	if envBool("REMOTECAP_STRICT_HOSTKEY") {
		cfg.StrictHostKey = true
	}
	if v := os.Getenv("REMOTECAP_KNOWN_HOSTS"); v != "" {
		cfg.KnownHostsPath = v
	}

	// Output
	if v := envInt("REMOTECAP_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}

// splitPath splits a colon-separated search path, dropping empty
// elements.
func splitPath(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ":") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
