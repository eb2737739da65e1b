package session

import (
	"sort"
	"sync"
)

// Pool holds at most one Connection per host name.  It is owned by the
// caller; nothing outlives the Pool unless the caller keeps it.
type Pool struct {
	mu    sync.Mutex
	conns map[string]*Connection
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{conns: make(map[string]*Connection)}
}

// Lookup returns the connection registered for host, if any.
func (p *Pool) Lookup(host string) (*Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[host]
	return c, ok
}

// Put registers c under its host, closing and returning any
// connection it displaced.
func (p *Pool) Put(c *Connection) *Connection {
	p.mu.Lock()
	prev := p.conns[c.Host]
	p.conns[c.Host] = c
	p.mu.Unlock()

	if prev != nil && prev != c {
		prev.Close() //nolint:errcheck
		return prev
	}
	return nil
}

// Discard removes the connection for host and closes it.  It returns
// the removed connection, or nil when there was none.
func (p *Pool) Discard(host string) (*Connection, error) {
	p.mu.Lock()
	c, ok := p.conns[host]
	delete(p.conns, host)
	p.mu.Unlock()

	if !ok {
		return nil, nil
	}
	return c, c.Close()
}

// Hosts returns the registered host names in sorted order.
func (p *Pool) Hosts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.conns))
	for h := range p.conns {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns)
}

// CloseAll closes and removes every connection.
func (p *Pool) CloseAll() error {
	p.mu.Lock()
	conns := p.conns
	p.conns = make(map[string]*Connection)
	p.mu.Unlock()

	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
