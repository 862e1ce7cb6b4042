package system

import (
	"context"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/seedctl/seedctl/pkg/engine"
)

// InitServiceController drives the daemon through the detected init
// system.
type InitServiceController struct {
	service    string
	process    string
	initSystem engine.InitSystem
	initDir    string
	runner     Runner
	log        zerolog.Logger
}

// NewInitServiceController creates a controller for the given service on
// the detected init system. process is the daemon's process name, used as
// a fallback liveness probe when the init system cannot answer.
func NewInitServiceController(service, process string, initSystem engine.InitSystem, runner Runner, log zerolog.Logger) *InitServiceController {
	return &InitServiceController{
		service:    service,
		process:    process,
		initSystem: initSystem,
		initDir:    "/etc/init.d",
		runner:     runner,
		log:        log.With().Str("component", "svccontrol").Logger(),
	}
}

// Start starts the daemon.
func (c *InitServiceController) Start(ctx context.Context) error {
	var err error
	switch c.initSystem {
	case engine.InitSystemd:
		_, err = c.runner.Run(ctx, "systemctl", "start", c.service)
	case engine.InitOpenRC:
		_, err = c.runner.Run(ctx, "rc-service", c.service, "start")
	case engine.InitSysV:
		_, err = c.runner.Run(ctx, filepath.Join(c.initDir, c.service), "start")
	default:
		_, err = c.runner.Run(ctx, c.process)
	}
	return err
}

// Stop stops the daemon.
func (c *InitServiceController) Stop(ctx context.Context) error {
	var err error
	switch c.initSystem {
	case engine.InitSystemd:
		_, err = c.runner.Run(ctx, "systemctl", "stop", c.service)
	case engine.InitOpenRC:
		_, err = c.runner.Run(ctx, "rc-service", c.service, "stop")
	case engine.InitSysV:
		_, err = c.runner.Run(ctx, filepath.Join(c.initDir, c.service), "stop")
	default:
		_, err = c.runner.Run(ctx, "pkill", "-x", c.process)
	}
	return err
}

// IsActive reports whether the daemon is currently running.
func (c *InitServiceController) IsActive(ctx context.Context) bool {
	switch c.initSystem {
	case engine.InitSystemd:
		out, err := c.runner.Run(ctx, "systemctl", "is-active", c.service)
		return err == nil && out == "active"
	case engine.InitOpenRC:
		_, err := c.runner.Run(ctx, "rc-service", c.service, "status")
		return err == nil
	default:
		// SysV status support is inconsistent; check the process table.
		_, err := c.runner.Run(ctx, "pgrep", "-x", c.process)
		return err == nil
	}
}
