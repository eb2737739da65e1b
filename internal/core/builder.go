package core

import (
	"fmt"

	"remotecap/config"
	"remotecap/internal/capability"
	"remotecap/internal/metrics"
	"remotecap/internal/session"
	"remotecap/internal/transport"
	"remotecap/remote"
	"remotecap/util"
)

// Build constructs the appropriate Mode from the given configuration.
// InvokeMode is chosen when a command to invoke was named.
func Build(cfg *config.Config, logger *util.Logger, m *metrics.Collector) (Mode, error) {
	reqs := requirementsFrom(cfg)
	if len(reqs) == 0 {
		return nil, fmt.Errorf("nothing to ensure")
	}

	ensure := &EnsureMode{
		Provisioner:  NewProvisioner(cfg, logger, m),
		Requirements: reqs,
		List:         cfg.List,
		Logger:       logger,
	}
	if cfg.Invoke != "" {
		return &InvokeMode{
			EnsureMode: ensure,
			Command:    cfg.Invoke,
			Args:       cfg.InvokeArgs,
		}, nil
	}
	return ensure, nil
}

// NewProvisioner wires an SSH-backed Provisioner with an empty pool
// and registry.
func NewProvisioner(cfg *config.Config, logger *util.Logger, m *metrics.Collector) *Provisioner {
	return &Provisioner{
		Pool:     session.NewPool(),
		Registry: capability.NewRegistry(),
		Resolver: &transport.Resolver{NoDNS: cfg.NoDNS},
		Prober: &transport.Prober{
			Dialer:  &transport.TCPDialer{Timeout: cfg.ProbeTimeout},
			Timeout: cfg.ProbeTimeout,
		},
		Opener:  transport.NewSSHOpener(sshConfig(cfg), logger),
		Loader:  &capability.RemoteLoader{LibPath: cfg.LibPath, Ext: config.DefaultLibraryExt, Logger: logger},
		Metrics: m,
		Logger:  logger,
	}
}

// sshConfig is the base every connection starts from; host, port, and
// (when given) user come from the requirement's target.
func sshConfig(cfg *config.Config) remote.SSHConfig {
	return remote.SSHConfig{
		User:          cfg.User,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   cfg.Timeout,
		Shell:         config.DefaultShell,
	}
}

func requirementsFrom(cfg *config.Config) []Requirement {
	var out []Requirement
	for _, r := range cfg.AllRequirements() {
		if r.Host == "" && r.Library == "" {
			continue
		}
		out = append(out, Requirement{
			Host:     r.Host,
			Library:  r.Library,
			Commands: r.Commands,
			Force:    r.Force || cfg.Force,
		})
	}
	return out
}
