package orchestrator

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/enterprise/cvm-trust-verifier/internal/config"
)

// CommandRunner abstracts process execution so the controller is testable
// without a real service manager.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements CommandRunner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return strings.TrimSpace(string(out)), err
}

// SystemdController manages the trust service through systemctl with a
// bounded start-and-poll loop.
type SystemdController struct {
	runner   CommandRunner
	unit     string
	retries  int
	interval time.Duration
	logger   logrus.FieldLogger
}

// NewSystemdController creates a controller for the configured service.
func NewSystemdController(runner CommandRunner, cfg config.ServiceConfig, logger logrus.FieldLogger) *SystemdController {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &SystemdController{
		runner:   runner,
		unit:     cfg.Name,
		retries:  cfg.StartRetries,
		interval: cfg.RetryInterval,
		logger:   logger,
	}
}

// EnsureRunning implements ServiceController. It short-circuits when the
// unit is already active, otherwise starts it and polls until active or the
// retry budget is exhausted.
func (c *SystemdController) EnsureRunning(ctx context.Context) error {
	if c.isActive(ctx) {
		c.logger.WithField("unit", c.unit).Debug("Trust service already active")
		return nil
	}

	c.logger.WithField("unit", c.unit).Info("Starting trust service")
	if out, err := c.runner.Run(ctx, "systemctl", "start", c.unit); err != nil {
		return fmt.Errorf("%w: start failed: %v: %s", ErrServiceUnavailable, err, out)
	}

	for attempt := 1; attempt <= c.retries; attempt++ {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrServiceUnavailable, ctx.Err())
		case <-time.After(c.interval):
		}

		if c.isActive(ctx) {
			c.logger.WithFields(logrus.Fields{
				"unit":    c.unit,
				"attempt": attempt,
			}).Info("Trust service active")
			return nil
		}
	}

	return fmt.Errorf("%w: %s not active after %d attempts", ErrServiceUnavailable, c.unit, c.retries)
}

func (c *SystemdController) isActive(ctx context.Context) bool {
	out, err := c.runner.Run(ctx, "systemctl", "is-active", c.unit)
	return err == nil && out == "active"
}
