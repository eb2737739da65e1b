// Package remote defines the Client interface for running scripts on a
// remote host and provides an SSH implementation backed by
// golang.org/x/crypto/ssh.
package remote

import (
	"context"
	"fmt"
)

// Client is a stateful channel to a remote host that can execute
// scripts.  Each Run is independent; shell state does not carry over
// between calls.
type Client interface {
	// Run executes script with the remote shell and blocks until it
	// exits or ctx is cancelled.  A non-zero exit status is reported
	// as *ExitError alongside the captured output.
	Run(ctx context.Context, script string) (*Result, error)

	// Close tears down the connection and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}

// Result is the captured output of one remote script.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
}

// ExitError reports a remote script that ran but exited non-zero.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("remote exited with status %d: %s", e.Code, e.Stderr)
	}
	return fmt.Sprintf("remote exited with status %d", e.Code)
}
