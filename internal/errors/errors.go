// Package errors provides domain-specific error types for remotecap.
//
// Provisioning failures are reported with one of five structured types
// (resolution, reachability, connection, remote load, import) so
// callers can tell which step of the procedure stopped them.  The
// transport-level NetworkError and SSHError types carry the lower-level
// cause.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrNotConnected        = errors.New("not connected")
	ErrConnectionClosed    = errors.New("connection is closed")
	ErrTimeout             = errors.New("operation timed out")
	ErrAuthFailed          = errors.New("authentication failed")
	ErrHostKeyMismatch     = errors.New("host key mismatch")
	ErrLibraryNotFound     = errors.New("library not found on remote search path")
	ErrCommandNotExported  = errors.New("command not exported by library")
	ErrUnknownCommand      = errors.New("unknown command")
	ErrInvalidIdentifier   = errors.New("invalid identifier")
	ErrNoDNS               = errors.New("DNS lookups disabled")
	ErrNoAddressesResolved = errors.New("no addresses resolved")
)

// ── Provisioning failures ────────────────────────────────────────────

// ResolutionError means the host name could not be resolved to an
// address.  No connection was attempted.
type ResolutionError struct {
	Host string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve %s: %v", e.Host, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// UnreachableError means the host resolved but did not answer the
// reachability probe.
type UnreachableError struct {
	Host string
	Addr string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("host %s unreachable at %s: %v", e.Host, e.Addr, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// ConnectionError means the remote session could not be opened.
type ConnectionError struct {
	Host string
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("open session to %s (%s): %v", e.Host, e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RemoteLoadError means the library could not be loaded on the remote
// side.  ExitCode is -1 when the remote script never reported one.
type RemoteLoadError struct {
	Host     string
	Library  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *RemoteLoadError) Error() string {
	msg := fmt.Sprintf("load library %q on %s: %v", e.Library, e.Host, e.Err)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *RemoteLoadError) Unwrap() error { return e.Err }

// ImportError means the remote commands could not be exposed locally.
// Command is empty when the failure is not tied to a single name.
type ImportError struct {
	Host    string
	Library string
	Command string
	Err     error
}

func (e *ImportError) Error() string {
	if e.Command != "" {
		return fmt.Sprintf("import %s/%s from %s: %v", e.Library, e.Command, e.Host, e.Err)
	}
	return fmt.Sprintf("import %s from %s: %v", e.Library, e.Host, e.Err)
}

func (e *ImportError) Unwrap() error { return e.Err }

// ── Transport errors ─────────────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "dial", "probe", "lookup"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether a later attempt may succeed
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// SSHError represents an SSH-specific failure with host context.
type SSHError struct {
	Op   string // "handshake", "auth", "hostkey", "session"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// Kind names the provisioning step that produced err: "resolution",
// "unreachable", "connection", "remote-load", "import", "config", or
// "" when err is none of those.
func Kind(err error) string {
	var (
		re  *ResolutionError
		ue  *UnreachableError
		ce  *ConnectionError
		rle *RemoteLoadError
		ie  *ImportError
		cfe *ConfigError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &re):
		return "resolution"
	case errors.As(err, &ue):
		return "unreachable"
	case errors.As(err, &ce):
		return "connection"
	case errors.As(err, &rle):
		return "remote-load"
	case errors.As(err, &ie):
		return "import"
	case errors.As(err, &cfe):
		return "config"
	}
	return ""
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }
