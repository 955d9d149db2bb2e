package toolchain

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasmnoise/console"
	"github.com/wippyai/wasmnoise/errors"
)

// Driver executes build steps strictly in order.
type Driver struct {
	Runner  Runner
	Console *console.Console
	// DryRun prints each command instead of running it. In-process steps
	// are skipped.
	DryRun bool
}

// NewDriver returns a Driver running commands through r and printing
// banners to c.
func NewDriver(r Runner, c *console.Console) *Driver {
	return &Driver{Runner: r, Console: c}
}

// Run executes steps in sequence and returns the first failure. Steps after
// a failure are not attempted.
func (d *Driver) Run(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			return errors.New(errors.PhaseToolchain, errors.KindCancelled).
				Detail("before step %q", step.Name).
				Cause(err).
				Build()
		}

		log := Logger().With(zap.String("step", step.Name), zap.Int("index", i))
		if d.Console != nil && step.Banner != "" {
			d.Console.Info("%s", step.Banner)
		}

		start := time.Now()
		if err := d.runStep(ctx, step); err != nil {
			log.Debug("step failed", zap.Error(err))
			return err
		}
		log.Debug("step complete", zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

func (d *Driver) runStep(ctx context.Context, step Step) error {
	if !step.External() {
		if d.DryRun {
			d.detail("(in process: %s)", step.Name)
			return nil
		}
		return step.Func(ctx)
	}

	cmd := step.Command
	if step.Expand != nil {
		expanded, err := step.Expand(cmd)
		if err != nil {
			return err
		}
		cmd = expanded
	}

	if d.DryRun {
		d.detail("$ %s", cmd.String())
		return nil
	}
	Logger().Info("running", zap.String("command", cmd.String()), zap.String("dir", cmd.Dir))
	return d.Runner.Run(ctx, cmd)
}

func (d *Driver) detail(format string, args ...any) {
	if d.Console != nil {
		d.Console.Detail(format, args...)
	}
}
