// Package session tracks remote connections and the capabilities
// loaded through them.
//
// A Connection binds a remote.Client to the host it was opened for and
// records which libraries have been loaded and which of their commands
// were exposed.  The Pool owns connections keyed by host name and is
// the only place "existing" connections come from.
package session

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"remotecap/remote"
)

// State is the lifecycle stage of a Connection.
type State int

const (
	StateOpening State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// LoadedCapability records a library loaded through a connection and
// the command names it exposed.
type LoadedCapability struct {
	Library  string
	Path     string   // resolved remote file
	Commands []string // exposed commands, in import order
}

// Has reports whether name is among the exposed commands.
func (lc *LoadedCapability) Has(name string) bool {
	return slices.Contains(lc.Commands, name)
}

// Connection is one remote session to a host.
type Connection struct {
	ID       string
	Host     string
	Client   remote.Client
	OpenedAt time.Time

	mu           sync.RWMutex
	state        State
	capabilities map[string]*LoadedCapability
}

// New returns a Connection in the Opening state.  Call MarkOpen once
// the client is connected.
func New(host string, client remote.Client) *Connection {
	return &Connection{
		ID:           uuid.NewString(),
		Host:         host,
		Client:       client,
		state:        StateOpening,
		capabilities: make(map[string]*LoadedCapability),
	}
}

// MarkOpen moves the connection to the Open state.
func (c *Connection) MarkOpen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateOpening {
		c.state = StateOpen
		c.OpenedAt = time.Now()
	}
}

// State reports the lifecycle state.  An Open connection whose client
// has died reports Closed.
func (c *Connection) State() State {
	c.mu.RLock()
	st := c.state
	c.mu.RUnlock()
	if st == StateOpen && (c.Client == nil || !c.Client.IsAlive()) {
		return StateClosed
	}
	return st
}

// Capability returns the loaded capability for library, if any.
func (c *Connection) Capability(library string) (*LoadedCapability, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	lc, ok := c.capabilities[library]
	return lc, ok
}

// HasLibrary reports whether library was loaded through c.
func (c *Connection) HasLibrary(library string) bool {
	_, ok := c.Capability(library)
	return ok
}

// HasCommand reports whether library was loaded and exposed name.
func (c *Connection) HasCommand(library, name string) bool {
	lc, ok := c.Capability(library)
	return ok && lc.Has(name)
}

// Satisfies reports whether c can serve library with every one of
// commands without being rebuilt.  When it cannot, reason says why.
// A single missing command disqualifies the whole connection.
func (c *Connection) Satisfies(library string, commands []string) (ok bool, reason string) {
	if st := c.State(); st != StateOpen {
		return false, "connection is " + st.String()
	}
	lc, loaded := c.Capability(library)
	if !loaded {
		return false, fmt.Sprintf("library %s not loaded", library)
	}
	for _, name := range commands {
		if !lc.Has(name) {
			return false, fmt.Sprintf("command %s not exposed by %s", name, library)
		}
	}
	return true, ""
}

// RecordCapability stores lc, replacing any previous record for the
// same library.
func (c *Connection) RecordCapability(lc *LoadedCapability) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.capabilities[lc.Library] = lc
}

// Libraries returns the number of capabilities loaded through c.
func (c *Connection) Libraries() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.capabilities)
}

// Close tears down the client and marks the connection Closed.  It is
// safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosed
	c.mu.Unlock()

	if c.Client == nil {
		return nil
	}
	return c.Client.Close()
}
