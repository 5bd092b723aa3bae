package dockercli

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/lodthe/registry-gc/internal/gctrigger"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Executor runs the gc sequence steps with the docker binary, the same commands an operator would type.
type Executor struct {
	logger zerolog.Logger
	cfg    Config
}

func New(logger zerolog.Logger, cfg Config) (*Executor, error) {
	if cfg.Binary == "" {
		cfg.Binary = DefaultConfig.Binary
	}

	path, err := exec.LookPath(cfg.Binary)
	if err != nil {
		return nil, errors.Wrapf(err, "docker binary %s not found", cfg.Binary)
	}
	cfg.Binary = path

	return &Executor{
		logger: logger.With().Str("executor", string(gctrigger.ExecutorDockerCLI)).Logger(),
		cfg:    cfg,
	}, nil
}

func (e *Executor) ListContainers(ctx context.Context) (gctrigger.StepReport, error) {
	return e.run(ctx, argsListContainers())
}

// StopContainer stops the named container. `docker stop` exits with 0 for a stopped container,
// while a missing one is an execution error.
func (e *Executor) StopContainer(ctx context.Context, name string) (gctrigger.StepReport, error) {
	return missingAsError(name)(e.run(ctx, argsStopContainer(name)))
}

func (e *Executor) RunCollector(ctx context.Context, spec gctrigger.CollectorSpec) (gctrigger.StepReport, error) {
	return e.run(ctx, argsRunCollector(spec))
}

func (e *Executor) StartContainer(ctx context.Context, name string) (gctrigger.StepReport, error) {
	return missingAsError(name)(e.run(ctx, argsStartContainer(name)))
}

func (e *Executor) ContainerState(ctx context.Context, name string) (gctrigger.ContainerState, error) {
	report, err := e.run(ctx, argsContainerStatus(name))
	if err != nil {
		return gctrigger.StateUnknown, err
	}

	if report.ExitCode != 0 {
		if isNoSuchContainer(report.Output) {
			return gctrigger.StateMissing, nil
		}

		return gctrigger.StateUnknown, errors.Errorf("docker inspect exited with code %d: %s", report.ExitCode, strings.TrimSpace(report.Output))
	}

	return gctrigger.MapDockerState(strings.TrimSpace(report.Output)), nil
}

func isNoSuchContainer(output string) bool {
	return strings.Contains(output, "No such container") || strings.Contains(output, "No such object")
}

// missingAsError turns a failed command about a missing container into an error,
// the same way the engine executor reports it.
func missingAsError(name string) func(gctrigger.StepReport, error) (gctrigger.StepReport, error) {
	return func(report gctrigger.StepReport, err error) (gctrigger.StepReport, error) {
		if err != nil || report.ExitCode == 0 || !isNoSuchContainer(report.Output) {
			return report, err
		}

		return report, errors.Errorf("container %s not found: %s", name, strings.TrimSpace(report.Output))
	}
}

// run executes the binary with the given arguments and captures stdout and stderr.
// A non-zero exit code is not an error.
func (e *Executor) run(ctx context.Context, args []string) (gctrigger.StepReport, error) {
	command := e.cfg.Binary + " " + strings.Join(args, " ")
	invokedAt := time.Now()

	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...)
	output, err := cmd.CombinedOutput()

	e.logger.Debug().
		Str("cmd", command).
		Dur("elapsed_ms", time.Since(invokedAt)).
		Msg("command finished")

	// A killed process also yields an ExitError, but it is not a result of the command.
	if ctx.Err() != nil {
		return gctrigger.StepReport{}, errors.Wrapf(ctx.Err(), "%s interrupted", command)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return gctrigger.StepReport{
			ExitCode: exitErr.ExitCode(),
			Output:   string(output),
		}, nil
	}
	if err != nil {
		return gctrigger.StepReport{}, errors.Wrapf(err, "%s cannot be executed", command)
	}

	return gctrigger.StepReport{Output: string(output)}, nil
}
