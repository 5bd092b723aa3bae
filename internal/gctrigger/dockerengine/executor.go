package dockerengine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lodthe/registry-gc/internal/gctrigger"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// removeTimeout bounds the cleanup of the collector container.
const removeTimeout = 30 * time.Second

// Executor runs the gc sequence steps using Docker Engine API.
//
// The daemon may be local or remote, the only requirement is a granted access to it.
type Executor struct {
	logger zerolog.Logger
	cfg    Config

	engine *engineProvider
}

func New(logger zerolog.Logger, cfg Config) (*Executor, error) {
	cli, err := newClient(cfg.DaemonURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Docker engine provider")
	}

	return newExecutor(logger, cfg, cli), nil
}

func newExecutor(logger zerolog.Logger, cfg Config, cli engineAPI) *Executor {
	return &Executor{
		logger: logger.With().Str("executor", string(gctrigger.ExecutorDockerEngine)).Logger(),
		cfg:    cfg,
		engine: newProvider(cli),
	}
}

func (e *Executor) Close() error {
	return e.engine.close()
}

// ListContainers prints all containers, one per line, like `docker ps -a` does.
func (e *Executor) ListContainers(ctx context.Context) (gctrigger.StepReport, error) {
	containers, err := e.engine.getContainers(ctx)
	if err != nil {
		return gctrigger.StepReport{}, errors.Wrap(err, "failed to list containers")
	}

	var out strings.Builder
	for _, c := range containers {
		id := c.ID
		if len(id) > 12 {
			id = id[:12]
		}

		names := make([]string, 0, len(c.Names))
		for _, n := range c.Names {
			names = append(names, strings.TrimPrefix(n, "/"))
		}

		fmt.Fprintf(&out, "%s\t%s\t%s\t%s\t%s\n", id, strings.Join(names, ","), c.Image, c.State, c.Status)
	}

	return gctrigger.StepReport{Output: out.String()}, nil
}

// StopContainer stops the named container.
// A container that exists but is not running is left as is, and the step succeeds.
func (e *Executor) StopContainer(ctx context.Context, name string) (gctrigger.StepReport, error) {
	inspect, err := e.engine.inspectContainer(ctx, name)
	if err != nil {
		return gctrigger.StepReport{}, errors.Wrapf(err, "failed to inspect container %s", name)
	}

	if inspect.ContainerJSONBase == nil || inspect.State == nil || !inspect.State.Running {
		status := "stopped"
		if inspect.ContainerJSONBase != nil && inspect.State != nil {
			status = inspect.State.Status
		}

		e.logger.Info().Str("container", name).Str("status", status).Msg("container is not running, skipping stop")

		return gctrigger.StepReport{
			Output: fmt.Sprintf("container %s is not running (%s)", name, status),
		}, nil
	}

	startedAt := time.Now()
	err = e.engine.stopContainer(ctx, name, e.cfg.StopTimeout)
	if err != nil {
		return gctrigger.StepReport{}, errors.Wrapf(err, "failed to stop container %s", name)
	}

	e.logger.Debug().Str("container", name).Dur("elapsed_ms", time.Since(startedAt)).Msg("container has been stopped")

	return gctrigger.StepReport{Output: name}, nil
}

// RunCollector creates the collector container, waits for its exit and removes it.
// The exit code of the collector is the exit code of the step.
func (e *Executor) RunCollector(ctx context.Context, spec gctrigger.CollectorSpec) (report gctrigger.StepReport, err error) {
	if spec.PullMissing {
		err = e.ensureImage(ctx, spec.Image)
		if err != nil {
			return gctrigger.StepReport{}, err
		}
	}

	err = e.removeLeftover(ctx, spec.Name)
	if err != nil {
		return gctrigger.StepReport{}, err
	}

	contConfig := &container.Config{
		Image:  spec.Image,
		Cmd:    spec.Command,
		Labels: collectorLabels(spec.VolumesFrom),
	}
	hostConfig := &container.HostConfig{
		VolumesFrom: []string{spec.VolumesFrom},
	}

	invokedAt := time.Now()
	cont, err := e.engine.createContainer(ctx, contConfig, hostConfig, spec.Name)
	if err != nil {
		return gctrigger.StepReport{}, errors.Wrap(err, "collector container cannot be created")
	}

	debugLogger := e.logger.Debug().Str("image", spec.Image).Str("container_id", cont.ID)
	debugLogger.Dur("elapsed_ms", time.Since(invokedAt)).Msg("collector container has been created")

	// Act like `docker run --rm`.
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeTimeout)
		defer cancel()

		rmErr := e.engine.removeContainer(removeCtx, cont.ID, true)
		if rmErr != nil && !cerrdefs.IsNotFound(rmErr) {
			e.logger.Error().Err(rmErr).Str("container_id", cont.ID).Msg("failed to remove collector container")
		}
	}()

	waitCh, waitErrCh := e.engine.waitContainer(ctx, cont.ID)

	err = e.engine.startContainer(ctx, cont.ID)
	if err != nil {
		return gctrigger.StepReport{}, errors.Wrap(err, "collector container cannot be started")
	}

	var exitCode int64
	select {
	case resp := <-waitCh:
		if resp.Error != nil {
			return gctrigger.StepReport{}, errors.Errorf("collector wait failed: %s", resp.Error.Message)
		}
		exitCode = resp.StatusCode

	case err := <-waitErrCh:
		return gctrigger.StepReport{}, errors.Wrap(err, "collector wait failed")
	}

	e.logger.Debug().
		Str("container_id", cont.ID).
		Int64("exit_code", exitCode).
		Dur("elapsed_ms", time.Since(invokedAt)).
		Msg("collector has finished")

	output, err := e.readLogs(ctx, cont.ID)
	if err != nil {
		e.logger.Error().Err(err).Str("container_id", cont.ID).Msg("failed to read collector output")
	}

	return gctrigger.StepReport{
		ExitCode: int(exitCode),
		Output:   output,
	}, nil
}

func (e *Executor) StartContainer(ctx context.Context, name string) (gctrigger.StepReport, error) {
	err := e.engine.startContainer(ctx, name)
	if err != nil {
		return gctrigger.StepReport{}, errors.Wrapf(err, "failed to start container %s", name)
	}

	return gctrigger.StepReport{Output: name}, nil
}

func (e *Executor) ContainerState(ctx context.Context, name string) (gctrigger.ContainerState, error) {
	inspect, err := e.engine.inspectContainer(ctx, name)
	if cerrdefs.IsNotFound(err) {
		return gctrigger.StateMissing, nil
	}
	if err != nil {
		return gctrigger.StateUnknown, errors.Wrapf(err, "failed to inspect container %s", name)
	}

	if inspect.ContainerJSONBase == nil || inspect.State == nil {
		return gctrigger.StateUnknown, nil
	}

	return gctrigger.MapDockerState(inspect.State.Status), nil
}

// removeLeftover removes a collector left by a crashed run, otherwise the name would conflict.
// A container with the same name that was not created by us is never touched.
func (e *Executor) removeLeftover(ctx context.Context, name string) error {
	inspect, err := e.engine.inspectContainer(ctx, name)
	if cerrdefs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "failed to inspect container %s", name)
	}

	if inspect.Config == nil || inspect.Config.Labels[LabelOwnership] != "1" {
		return errors.Errorf("container name %s is already in use by a container not created by registry gc", name)
	}

	err = e.engine.removeContainer(ctx, name, true)
	if err != nil && !cerrdefs.IsNotFound(err) {
		return errors.Wrap(err, "failed to remove a leftover collector container")
	}

	e.logger.Warn().Str("container", name).Msg("a leftover collector container has been removed")

	return nil
}

// ensureImage pulls the image if it hasn't been downloaded yet.
func (e *Executor) ensureImage(ctx context.Context, ref string) error {
	exists, err := e.engine.imageExists(ctx, ref)
	if err != nil {
		return errors.Wrap(err, "failed to list images")
	}
	if exists {
		return nil
	}

	startedAt := time.Now()
	out, err := e.engine.pullImage(ctx, ref)
	if err != nil {
		return errors.Wrap(err, "docker pull failed")
	}
	defer out.Close()

	// We should read the output to be sure that the image has been pulled.
	_, err = io.Copy(io.Discard, out)
	if err != nil {
		return errors.Wrap(err, "failed to read pull output")
	}

	e.logger.Info().Str("image", ref).Dur("elapsed_ms", time.Since(startedAt)).Msg("collector image has been pulled")

	return nil
}

func (e *Executor) readLogs(ctx context.Context, id string) (string, error) {
	logs, err := e.engine.containerLogs(ctx, id)
	if err != nil {
		return "", errors.Wrap(err, "logs request failed")
	}
	defer logs.Close()

	// The collector runs without a TTY, so the stream is multiplexed.
	var buf bytes.Buffer
	_, err = stdcopy.StdCopy(&buf, &buf, logs)
	if err != nil {
		return buf.String(), errors.Wrap(err, "failed to demultiplex logs")
	}

	return buf.String(), nil
}
