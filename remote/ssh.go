package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/user"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	ncerr "remotecap/internal/errors"
	"remotecap/util"
)

// SSHConfig holds everything needed to dial an SSH host.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// Shell interprets scripts passed to Run.  The script is written
	// to the shell's stdin ("<shell> -s").
	Shell string
}

// SSHClient implements [Client] over a single SSH connection, opening
// one SSH session per Run.
type SSHClient struct {
	config *SSHConfig
	client *ssh.Client
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
	closed bool // Close was called
}

// NewSSHClient creates a client that is ready to [SSHClient.Connect].
func NewSSHClient(cfg *SSHConfig, logger *util.Logger) *SSHClient {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if cfg.Shell == "" {
		cfg.Shell = "bash"
	}
	if cfg.User == "" {
		cfg.User = currentUser()
	}
	return &SSHClient{config: cfg, logger: logger}
}

// Addr returns the host:port this client dials.
func (c *SSHClient) Addr() string {
	return util.FormatAddr(c.config.Host, c.config.Port)
}

// Connect dials the SSH host and completes the handshake.
func (c *SSHClient) Connect(ctx context.Context) error {
	authMethods, err := BuildAuthMethods(c.config)
	if err != nil {
		return ncerr.WrapSSH("auth", c.config.Host, c.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(c.config)
	if err != nil {
		return ncerr.WrapSSH("hostkey", c.config.Host, c.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            c.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         c.config.ConnTimeout,
	}

	addr := c.Addr()
	c.logger.Debug("SSH: dialing %s as %s", addr, c.config.User)

	// Use a context-aware TCP dial so callers can cancel.
	dialer := net.Dialer{Timeout: c.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return ncerr.Wrap("dial", addr, err)
	}

	// Bound the handshake by the same timeout; cleared once it is done.
	_ = tcpConn.SetDeadline(time.Now().Add(c.config.ConnTimeout))
	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	if err != nil {
		tcpConn.Close()
		return ncerr.WrapSSH("handshake", c.config.Host, c.config.Port, err)
	}
	_ = tcpConn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)

	c.mu.Lock()
	c.client = client
	c.alive = true
	c.closed = false
	c.mu.Unlock()

	go c.monitor(client)

	return nil
}

// Run writes script to the remote shell's stdin and collects its
// output.  Cancelling ctx closes the session.
func (c *SSHClient) Run(ctx context.Context, script string) (*Result, error) {
	c.mu.RLock()
	client := c.client
	alive := c.alive
	closed := c.closed
	c.mu.RUnlock()

	switch {
	case closed || (client != nil && !alive):
		return nil, fmt.Errorf("%w: %w", ncerr.ErrNotConnected, ncerr.ErrConnectionClosed)
	case client == nil:
		return nil, ncerr.ErrNotConnected
	}

	sess, err := client.NewSession()
	if err != nil {
		return nil, ncerr.WrapSSH("session", c.config.Host, c.config.Port, err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdin = strings.NewReader(script)
	sess.Stdout = &stdout
	sess.Stderr = &stderr

	cmd := c.config.Shell + " -s"
	c.logger.Debug("SSH: %s on %s (%d byte script)", cmd, c.Addr(), len(script))

	if err := sess.Start(cmd); err != nil {
		return nil, ncerr.WrapSSH("session", c.config.Host, c.config.Port, err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case <-ctx.Done():
		sess.Close()
		return nil, fmt.Errorf("remote run on %s: %w", c.Addr(), ctx.Err())
	case err = <-done:
	}

	res := &Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err == nil {
		return res, nil
	}

	var ee *ssh.ExitError
	if errors.As(err, &ee) {
		res.ExitCode = ee.ExitStatus()
		return res, &ExitError{Code: res.ExitCode, Stderr: strings.TrimSpace(stderr.String())}
	}
	res.ExitCode = -1
	return res, ncerr.WrapSSH("session", c.config.Host, c.config.Port, err)
}

// Close shuts down the SSH connection.
func (c *SSHClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.alive = false
	c.closed = true
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the connection is still up.
func (c *SSHClient) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

// monitor blocks until the SSH connection closes and flips the alive flag.
func (c *SSHClient) monitor(client *ssh.Client) {
	err := client.Wait()

	c.mu.Lock()
	if c.client == client {
		c.alive = false
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Debug("SSH connection to %s closed: %v", c.Addr(), err)
	} else {
		c.logger.Debug("SSH connection to %s closed", c.Addr())
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "root"
}
