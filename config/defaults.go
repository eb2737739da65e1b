package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, manifest parsing, and environment variable loading.

const (
	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultConnTimeout bounds the SSH dial and handshake.
	DefaultConnTimeout = 30 * time.Second

	// DefaultProbeTimeout bounds the reachability probe.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultLibraryExt is appended to a library name to find its file
	// on the remote search path.
	DefaultLibraryExt = ".sh"

	// DefaultShell runs remote scripts.  Function discovery relies on
	// bash's declare -F.
	DefaultShell = "bash"
)

// DefaultLibPath is the remote library search path, in lookup order.
// Entries starting with "~/" are relative to the remote $HOME.
func DefaultLibPath() []string {
	return []string{"~/.remotecap/lib", "/usr/local/lib/remotecap"}
}
