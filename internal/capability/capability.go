// Package capability loads remote command libraries and exposes their
// commands to the caller.
//
// A library is a shell file of function definitions found on the
// remote library search path.  Loading it yields a Capability (the
// library's exported commands); importing a Capability into a Registry
// creates local Command proxies that run the remote function over the
// connection they were imported through.
package capability

import (
	"context"
	"slices"

	"remotecap/internal/session"
)

// Capability is a library as loaded on a remote host: where it lives
// and which commands it exports.
type Capability struct {
	Library  string
	Path     string   // resolved remote file
	Commands []string // exported commands, in listing order
}

// Exports reports whether the library exports name.
func (c *Capability) Exports(name string) bool {
	return slices.Contains(c.Commands, name)
}

// Loader loads a library through an open connection.
type Loader interface {
	// Load makes library available on the remote side of conn and
	// reports what it exports.  Failures are *errors.RemoteLoadError.
	Load(ctx context.Context, conn *session.Connection, library string) (*Capability, error)
}
