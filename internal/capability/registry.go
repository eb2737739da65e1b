package capability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	ncerr "remotecap/internal/errors"
	"remotecap/internal/session"
	"remotecap/remote"
	"remotecap/util"
)

// Command is a local proxy for a function defined by a remote library.
// It stays bound to the connection it was imported through.
type Command struct {
	Name    string
	Library string
	Path    string // remote library file sourced before each call

	conn *session.Connection
}

// Host returns the host the command runs on.
func (c *Command) Host() string { return c.conn.Host }

// ConnectionID identifies the connection the command is bound to.
func (c *Command) ConnectionID() string { return c.conn.ID }

// Invoke runs the remote function with args in a fresh remote shell.
// Arguments are passed verbatim; each one is quoted.
func (c *Command) Invoke(ctx context.Context, args ...string) (*remote.Result, error) {
	if c.conn.State() != session.StateOpen {
		return nil, fmt.Errorf("%s on %s: %w", c.Name, c.conn.Host, ncerr.ErrNotConnected)
	}
	var b strings.Builder
	fmt.Fprintf(&b, ". %s >/dev/null || exit %d\n", util.ShellQuote(c.Path), exitSourceFail)
	b.WriteString(util.ShellJoin(append([]string{c.Name}, args...)...))
	b.WriteByte('\n')
	return c.conn.Client.Run(ctx, b.String())
}

// Registry is the caller's table of imported commands, keyed by
// command name.  Importing a name that is already present replaces the
// earlier proxy.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Import exposes the commands of capab, bound to conn.  With a nil or
// empty filter every exported command is imported; otherwise only the
// named ones, each of which must be exported.  Nothing is imported
// when any name fails.  It returns the imported names in order.
func (r *Registry) Import(conn *session.Connection, capab *Capability, filter []string) ([]string, error) {
	fail := func(name string, err error) error {
		return &ncerr.ImportError{Host: conn.Host, Library: capab.Library, Command: name, Err: err}
	}

	if conn.State() != session.StateOpen {
		return nil, fail("", ncerr.ErrNotConnected)
	}

	names := capab.Commands
	if len(filter) > 0 {
		names = make([]string, 0, len(filter))
		seen := make(map[string]bool, len(filter))
		for _, name := range filter {
			if !util.ValidCommandName(name) {
				return nil, fail(name, ncerr.ErrInvalidIdentifier)
			}
			if !capab.Exports(name) {
				return nil, fail(name, ncerr.ErrCommandNotExported)
			}
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range names {
		r.commands[name] = &Command{
			Name:    name,
			Library: capab.Library,
			Path:    capab.Path,
			conn:    conn,
		}
	}
	return append([]string(nil), names...), nil
}

// Lookup returns the proxy registered under name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.commands[name]
	return c, ok
}

// Invoke runs the command registered under name.
func (r *Registry) Invoke(ctx context.Context, name string, args ...string) (*remote.Result, error) {
	c, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ncerr.ErrUnknownCommand, name)
	}
	return c.Invoke(ctx, args...)
}

// Names returns every registered command name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.commands))
	for name := range r.commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}

// DropConnection removes every proxy bound to the connection with the
// given ID and returns how many were removed.
func (r *Registry) DropConnection(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for name, c := range r.commands {
		if c.conn.ID == id {
			delete(r.commands, name)
			n++
		}
	}
	return n
}
