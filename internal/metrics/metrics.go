// Package metrics provides lightweight, lock-free counters for tracking
// what a remotecap run did with its connections.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks provisioning metrics.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive    atomic.Int64
	connectionsOpened    atomic.Int64
	connectionsDiscarded atomic.Int64
	connectionsReused    atomic.Int64
	connectionsClosed    atomic.Int64
	librariesLoaded      atomic.Int64
	commandsImported     atomic.Int64
	errorsTotal          atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened records a newly provisioned connection.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsOpened.Add(1)
}

// ConnectionDiscarded records a connection closed by a failed reuse
// check or a forced rebuild.
func (c *Collector) ConnectionDiscarded() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
	c.connectionsDiscarded.Add(1)
}

// ConnectionClosed records a pooled connection torn down at shutdown.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
	c.connectionsClosed.Add(1)
}

// ConnectionReused records a requirement satisfied without any new
// connection.
func (c *Collector) ConnectionReused() {
	if c == nil {
		return
	}
	c.connectionsReused.Add(1)
}

// ActiveConnections returns the number of connections still open.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// OpenedConnections returns the lifetime count of opened connections.
func (c *Collector) OpenedConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsOpened.Load()
}

// DiscardedConnections returns the lifetime count of discards.
func (c *Collector) DiscardedConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsDiscarded.Load()
}

// ClosedConnections returns how many connections were closed at
// shutdown rather than discarded.
func (c *Collector) ClosedConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsClosed.Load()
}

// ReusedConnections returns how many requirements were satisfied by an
// existing connection.
func (c *Collector) ReusedConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsReused.Load()
}

// ── Capability metrics ───────────────────────────────────────────────

// LibraryLoaded records a library loaded remotely and the number of
// commands imported from it.
func (c *Collector) LibraryLoaded(commands int) {
	if c == nil {
		return
	}
	c.librariesLoaded.Add(1)
	c.commandsImported.Add(int64(commands))
}

// LoadedLibraries returns the number of libraries loaded.
func (c *Collector) LoadedLibraries() int64 {
	if c == nil {
		return 0
	}
	return c.librariesLoaded.Load()
}

// ImportedCommands returns the number of command proxies created.
func (c *Collector) ImportedCommands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsImported.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime               string `json:"uptime"`
	ConnectionsActive    int64  `json:"connections_active"`
	ConnectionsOpened    int64  `json:"connections_opened"`
	ConnectionsDiscarded int64  `json:"connections_discarded"`
	ConnectionsReused    int64  `json:"connections_reused"`
	ConnectionsClosed    int64  `json:"connections_closed"`
	LibrariesLoaded      int64  `json:"libraries_loaded"`
	CommandsImported     int64  `json:"commands_imported"`
	ErrorsTotal          int64  `json:"errors_total"`
	LastError            string `json:"last_error,omitempty"`
	LastErrorMessage     string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:               time.Since(c.startTime).Truncate(time.Millisecond).String(),
		ConnectionsActive:    c.connectionsActive.Load(),
		ConnectionsOpened:    c.connectionsOpened.Load(),
		ConnectionsDiscarded: c.connectionsDiscarded.Load(),
		ConnectionsReused:    c.connectionsReused.Load(),
		ConnectionsClosed:    c.connectionsClosed.Load(),
		LibrariesLoaded:      c.librariesLoaded.Load(),
		CommandsImported:     c.commandsImported.Load(),
		ErrorsTotal:          c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}
