package transport

import (
	"context"

	"remotecap/config"
	"remotecap/remote"
	"remotecap/util"
)

// SSHOpener opens SSH connections using a shared base configuration.
// The target's user and port override the base values.
type SSHOpener struct {
	Base   remote.SSHConfig
	Logger *util.Logger
}

// NewSSHOpener creates an opener whose connections start from base.
func NewSSHOpener(base remote.SSHConfig, logger *util.Logger) *SSHOpener {
	return &SSHOpener{Base: base, Logger: logger}
}

// Open dials t and completes the SSH handshake.
func (o *SSHOpener) Open(ctx context.Context, t config.Target) (remote.Client, error) {
	cfg := o.Base
	cfg.Host = t.Host
	cfg.Port = t.Port
	if t.User != "" {
		cfg.User = t.User
	}

	o.Logger.Verbose("establishing SSH session to %s", t)

	c := remote.NewSSHClient(&cfg, o.Logger)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	o.Logger.Verbose("SSH session to %s established", t)
	return c, nil
}
