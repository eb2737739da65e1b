package core

import (
	"context"
	"fmt"

	"remotecap/config"
	"remotecap/internal/capability"
	ncerr "remotecap/internal/errors"
	"remotecap/internal/metrics"
	"remotecap/internal/session"
	"remotecap/remote"
	"remotecap/util"
)

// Requirement names a library (and optionally a subset of its
// commands) that must be usable on a host.
type Requirement struct {
	Host     string   // [user@]host[:port]; also the pool key
	Library  string   // remote library name
	Commands []string // empty means the whole library
	Force    bool     // rebuild the connection even if it would do
}

// Resolver turns a host name into candidate addresses.
type Resolver interface {
	Resolve(ctx context.Context, host string) ([]string, error)
}

// Prober returns the first address answering on port.
type Prober interface {
	Probe(ctx context.Context, addrs []string, port int) (string, error)
}

// Opener establishes a remote session to a target.
type Opener interface {
	Open(ctx context.Context, t config.Target) (remote.Client, error)
}

// Provisioner makes remote capabilities available, reusing pooled
// connections whenever they still satisfy a requirement.
type Provisioner struct {
	Pool     *session.Pool
	Registry *capability.Registry
	Resolver Resolver
	Prober   Prober
	Opener   Opener
	Loader   capability.Loader
	Metrics  *metrics.Collector
	Logger   *util.Logger
}

// Ensure guarantees that req.Library, and every one of req.Commands,
// is callable through the returned registry.
//
// A pooled connection for req.Host is reused only when it is open, has
// the library loaded, exposes every requested command, and req.Force is
// unset.  Otherwise it is closed and a new one is provisioned in this
// call: resolve, probe, open, load, import.  Each step fails with its
// own error type and stops the procedure.
//
// With no commands requested, a loaded library is enough for reuse: if
// an earlier call imported only a subset of it, the registry still
// holds just that subset.
//
// On reuse, any recorded command whose registry entry was overwritten
// by another host's import is bound back to the reused connection.
func (p *Provisioner) Ensure(ctx context.Context, req Requirement) (*capability.Registry, error) {
	target, err := validateRequirement(req)
	if err != nil {
		p.Metrics.RecordError(err.Error())
		return nil, err
	}

	if conn, ok := p.Pool.Lookup(req.Host); ok {
		ok, reason := conn.Satisfies(req.Library, req.Commands)
		if ok && !req.Force {
			if err := p.rebind(conn, req); err != nil {
				p.Metrics.RecordError(err.Error())
				return nil, err
			}
			p.Logger.Debug("reusing session %s to %s for %s", conn.ID, req.Host, req.Library)
			p.Metrics.ConnectionReused()
			return p.Registry, nil
		}
		if ok {
			reason = "forced"
		}
		p.discard(req.Host, reason)
	}

	if err := p.provision(ctx, req, target); err != nil {
		p.Metrics.RecordError(err.Error())
		return nil, err
	}
	return p.Registry, nil
}

// Close tears down every pooled connection.
func (p *Provisioner) Close() error {
	for _, host := range p.Pool.Hosts() {
		if conn, ok := p.Pool.Lookup(host); ok {
			p.Registry.DropConnection(conn.ID)
			p.Metrics.ConnectionClosed()
		}
	}
	return p.Pool.CloseAll()
}

// rebind re-imports the commands req needs from conn whose registry
// entries are missing or bound to another connection.
func (p *Provisioner) rebind(conn *session.Connection, req Requirement) error {
	lc, ok := conn.Capability(req.Library)
	if !ok {
		return nil
	}
	names := req.Commands
	if len(names) == 0 {
		names = lc.Commands
	}

	var stale []string
	for _, name := range names {
		cmd, ok := p.Registry.Lookup(name)
		if !ok || cmd.ConnectionID() != conn.ID {
			stale = append(stale, name)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	capab := &capability.Capability{Library: lc.Library, Path: lc.Path, Commands: lc.Commands}
	if _, err := p.Registry.Import(conn, capab, stale); err != nil {
		return err
	}
	p.Logger.Verbose("rebound %d commands of %s to session %s on %s",
		len(stale), req.Library, conn.ID, req.Host)
	return nil
}

func (p *Provisioner) discard(host, reason string) {
	conn, err := p.Pool.Discard(host)
	if conn == nil {
		return
	}
	dropped := p.Registry.DropConnection(conn.ID)
	p.Metrics.ConnectionDiscarded()
	p.Logger.Verbose("discarding session %s to %s: %s (%d commands dropped)",
		conn.ID, host, reason, dropped)
	if err != nil {
		p.Logger.Debug("closing session %s: %v", conn.ID, err)
	}
}

func (p *Provisioner) provision(ctx context.Context, req Requirement, target config.Target) error {
	addrs, err := p.Resolver.Resolve(ctx, target.Host)
	if err != nil {
		return &ncerr.ResolutionError{Host: req.Host, Err: err}
	}
	p.Logger.Debug("%s resolved to %v", target.Host, addrs)

	addr, err := p.Prober.Probe(ctx, addrs, target.Port)
	if err != nil {
		return &ncerr.UnreachableError{
			Host: req.Host,
			Addr: util.FormatAddr(target.Host, target.Port),
			Err:  err,
		}
	}

	client, err := p.Opener.Open(ctx, target)
	if err != nil {
		return &ncerr.ConnectionError{Host: req.Host, Addr: addr, Err: err}
	}

	conn := session.New(req.Host, client)
	conn.MarkOpen()
	if old := p.Pool.Put(conn); old != nil {
		p.Registry.DropConnection(old.ID)
	}
	p.Metrics.ConnectionOpened()
	p.Logger.Verbose("session %s open to %s via %s", conn.ID, req.Host, addr)

	// From here on the connection stays pooled even if loading or
	// importing fails; it carries no capability record, so the next
	// Ensure for this host rebuilds it.
	capab, err := p.Loader.Load(ctx, conn, req.Library)
	if err != nil {
		var rle *ncerr.RemoteLoadError
		if !ncerr.As(err, &rle) {
			err = &ncerr.RemoteLoadError{Host: req.Host, Library: req.Library, ExitCode: -1, Err: err}
		}
		return err
	}

	names, err := p.Registry.Import(conn, capab, req.Commands)
	if err != nil {
		var ie *ncerr.ImportError
		if !ncerr.As(err, &ie) {
			err = &ncerr.ImportError{Host: req.Host, Library: req.Library, Err: err}
		}
		return err
	}

	conn.RecordCapability(&session.LoadedCapability{
		Library:  capab.Library,
		Path:     capab.Path,
		Commands: names,
	})
	p.Metrics.LibraryLoaded(len(names))
	p.Logger.Verbose("imported %d commands from %s on %s", len(names), req.Library, req.Host)
	return nil
}

func validateRequirement(req Requirement) (config.Target, error) {
	if req.Host == "" {
		return config.Target{}, &ncerr.ConfigError{Field: "host", Message: "is required"}
	}
	target, err := config.ParseTarget(req.Host)
	if err != nil {
		return config.Target{}, &ncerr.ConfigError{Field: "host", Value: req.Host, Message: err.Error()}
	}
	if req.Library == "" {
		return config.Target{}, &ncerr.ConfigError{Field: "library", Message: "is required"}
	}
	if !util.ValidLibraryName(req.Library) {
		return config.Target{}, &ncerr.ConfigError{
			Field:   "library",
			Value:   req.Library,
			Message: "is not a valid library name",
		}
	}
	for _, name := range req.Commands {
		if !util.ValidCommandName(name) {
			return config.Target{}, &ncerr.ConfigError{
				Field:   "command",
				Value:   name,
				Message: fmt.Sprintf("is not a valid command name for %s", req.Library),
			}
		}
	}
	return target, nil
}
