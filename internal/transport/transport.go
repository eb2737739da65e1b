// Package transport provides the network-level steps that precede a
// remote session: resolving a host name, probing that it answers, and
// opening the SSH connection itself.  What runs over the connection is
// the capability layer's job.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound network connections.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
