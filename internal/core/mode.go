// Package core is the orchestration layer.  It holds the Provisioner
// that decides whether a pooled connection can be reused, the modes the
// CLI runs on top of it, and a builder that assembles both from a
// Config.
//
// Architecture layers (bottom → top):
//
//	transport, remote  →  session  →  capability  →  core  →  cmd (CLI)
package core

import (
	"context"
	"fmt"
	"io"
	"os"

	"remotecap/internal/capability"
	ncerr "remotecap/internal/errors"
	"remotecap/remote"
	"remotecap/util"
)

// Mode represents a complete run of remotecap.  Each mode owns the
// lifecycle of the connections it provisions.
type Mode interface {
	Run(ctx context.Context) error
}

// EnsureMode provisions every requirement in order and stops at the
// first failure.  Success is silent unless List is set.
type EnsureMode struct {
	Provisioner  *Provisioner
	Requirements []Requirement
	List         bool
	Logger       *util.Logger

	// Stdout defaults to os.Stdout when nil.
	Stdout io.Writer
}

func (m *EnsureMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run ensures all requirements and closes every connection on return.
func (m *EnsureMode) Run(ctx context.Context) error {
	defer m.Provisioner.Close()

	reg, err := m.ensureAll(ctx)
	if err != nil {
		return err
	}
	if m.List {
		printCommands(m.stdout(), reg)
	}
	return nil
}

func (m *EnsureMode) ensureAll(ctx context.Context) (*capability.Registry, error) {
	reg := m.Provisioner.Registry
	for _, req := range m.Requirements {
		m.Logger.Verbose("ensuring %s on %s", req.Library, req.Host)
		r, err := m.Provisioner.Ensure(ctx, req)
		if err != nil {
			return nil, err
		}
		reg = r
	}
	return reg, nil
}

// InvokeMode ensures its requirements and then runs one imported
// command, copying the remote output to Stdout and Stderr.  A non-zero
// remote exit status is returned as a [remote.ExitError].
type InvokeMode struct {
	*EnsureMode
	Command string
	Args    []string

	// Stderr defaults to os.Stderr when nil.
	Stderr io.Writer
}

func (m *InvokeMode) stderr() io.Writer {
	if m.Stderr != nil {
		return m.Stderr
	}
	return os.Stderr
}

// Run ensures, invokes, and closes every connection on return.
func (m *InvokeMode) Run(ctx context.Context) error {
	defer m.Provisioner.Close()

	reg, err := m.ensureAll(ctx)
	if err != nil {
		return err
	}
	if m.List {
		printCommands(m.stdout(), reg)
	}

	m.Logger.Verbose("invoking %s %v", m.Command, m.Args)
	res, err := reg.Invoke(ctx, m.Command, m.Args...)
	if res != nil {
		m.stdout().Write(res.Stdout) //nolint:errcheck
		m.stderr().Write(res.Stderr) //nolint:errcheck
	}
	if err != nil {
		var ee *remote.ExitError
		if ncerr.As(err, &ee) {
			// stderr was already copied out
			return fmt.Errorf("%s: %w", m.Command, &remote.ExitError{Code: ee.Code})
		}
		return fmt.Errorf("invoke %s: %w", m.Command, err)
	}
	return nil
}

func printCommands(w io.Writer, reg *capability.Registry) {
	for _, name := range reg.Names() {
		cmd, ok := reg.Lookup(name)
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, cmd.Library, cmd.Host())
	}
}
