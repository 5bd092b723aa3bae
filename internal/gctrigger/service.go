package gctrigger

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/lodthe/registry-gc/internal/gcrun"
	"github.com/lodthe/registry-gc/internal/metrics"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

const joinKey = "gc"

// maxRecordedOutput limits how much of a step output is kept in the run history.
const maxRecordedOutput = 4096

// RunRecorder saves finished sequences.
type RunRecorder interface {
	Create(ctx context.Context, run *gcrun.Run) error
}

// Sleeper blocks for the given duration or until the context is done.
type Sleeper func(ctx context.Context, d time.Duration) error

type Option func(s *Service)

// WithSleeper replaces the pause implementation.
func WithSleeper(sleep Sleeper) Option {
	return func(s *Service) {
		s.sleep = sleep
	}
}

// WithRecorder makes the service save every finished sequence.
func WithRecorder(recorder RunRecorder) Option {
	return func(s *Service) {
		s.history = recorder
	}
}

// Service performs out-of-band garbage collection of a registry container:
// it stops the container, runs the garbage collector against its volumes and starts it again.
//
// At most one sequence is in flight at a time. What happens to triggers that arrive
// during a running sequence is decided by Config.ConcurrencyPolicy.
type Service struct {
	logger zerolog.Logger
	cfg    Config

	exec    Executor
	history RunRecorder
	sleep   Sleeper

	sem   *semaphore.Weighted
	group singleflight.Group
}

func New(logger zerolog.Logger, cfg Config, exec Executor, opts ...Option) (*Service, error) {
	if exec == nil {
		return nil, errors.New("executor is required")
	}

	err := cfg.validate()
	if err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	s := &Service{
		logger: logger.With().Str("component", "gctrigger").Logger(),
		cfg:    cfg,
		exec:   exec,
		sleep:  Pause,
		sem:    semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

func (s *Service) Config() Config {
	return s.cfg
}

// TriggerGC runs the stop/collect/start sequence and returns its outcome.
//
// The sequence itself is detached from ctx: once started, it is not interrupted when the caller
// goes away, because that would leave the registry stopped. ctx only bounds the time spent
// waiting for the guard under the QUEUE and JOIN policies.
//
// The returned error is non-nil only when no sequence has been run for this trigger:
// ErrBusy under the REJECT policy, or the context error while waiting.
func (s *Service) TriggerGC(ctx context.Context) (Outcome, error) {
	switch s.cfg.ConcurrencyPolicy {
	case ConcurrencyQueue:
		err := s.sem.Acquire(ctx, 1)
		if err != nil {
			return Outcome{}, errors.Wrap(err, "waiting for the running sequence failed")
		}
		defer s.sem.Release(1)

		return s.run(ctx), nil

	case ConcurrencyJoin:
		ch := s.group.DoChan(joinKey, func() (interface{}, error) {
			return s.run(ctx), nil
		})

		select {
		case res := <-ch:
			out := res.Val.(Outcome)
			out.Shared = res.Shared

			return out, nil

		case <-ctx.Done():
			return Outcome{}, errors.Wrap(ctx.Err(), "waiting for the running sequence failed")
		}

	default:
		if !s.sem.TryAcquire(1) {
			metrics.GCSequence.TriggerRejected()
			s.logger.Warn().Msg("gc trigger rejected: another sequence is running")

			return Outcome{}, ErrBusy
		}
		defer s.sem.Release(1)

		return s.run(ctx), nil
	}
}

func (s *Service) run(ctx context.Context) Outcome {
	ctx = context.WithoutCancel(ctx)
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	out := Outcome{
		RunID:     gcrun.NewID(),
		StartedAt: time.Now(),
	}
	logger := s.logger.With().Str("run_id", out.RunID).Logger()

	metrics.GCSequence.SequenceStarted()
	logger.Info().Str("container", s.cfg.Container).Msg("do gc worker")

	s.execute(ctx, logger, &out)

	out.FinishedAt = time.Now()
	metrics.GCSequence.SequenceFinished(out.OK, string(out.FailedStep), out.StartedAt)

	if out.OK {
		logger.Info().
			Int("status", out.ExitCode).
			Dur("elapsed", out.FinishedAt.Sub(out.StartedAt)).
			Msg("gc cmd exec ok")
	} else {
		logger.Error().
			Err(out.Err).
			Str("step", string(out.FailedStep)).
			Int("exit_code", out.ExitCode).
			Dur("elapsed", out.FinishedAt.Sub(out.StartedAt)).
			Msg("gc cmd exec error")
	}

	s.record(ctx, logger, out)

	return out
}

type sequenceStep struct {
	step  Step
	pause bool
	run   func(ctx context.Context) (StepReport, error)
}

func (s *Service) steps() []sequenceStep {
	return []sequenceStep{
		{step: StepList, pause: false, run: s.exec.ListContainers},
		{step: StepStop, pause: true, run: s.stop},
		{step: StepCollect, pause: true, run: s.collect},
		{step: StepStart, pause: true, run: s.start},
	}
}

func (s *Service) execute(ctx context.Context, logger zerolog.Logger, out *Outcome) {
	steps := s.steps()
	for i, st := range steps {
		last := i == len(steps)-1

		if st.pause {
			logger.Debug().Dur("pause", s.cfg.Pause).Str("next_step", string(st.step)).Msg("sleeping before the next step")

			pausedAt := time.Now()
			err := s.sleep(ctx, s.cfg.Pause)
			if err != nil {
				err = errors.Wrapf(err, "pause before %s interrupted", st.step)
				out.Steps = append(out.Steps, StepResult{
					Step:     StepPause,
					ExitCode: ExitCodeUnavailable,
					Err:      err,
					Elapsed:  time.Since(pausedAt),
				})
				out.fail(StepPause, ExitCodeUnavailable, err)

				return
			}
		}

		startedAt := time.Now()
		report, err := st.run(ctx)

		res := StepResult{
			Step:     st.step,
			ExitCode: report.ExitCode,
			Output:   report.Output,
			Err:      err,
			Elapsed:  time.Since(startedAt),
		}
		if err != nil {
			res.ExitCode = ExitCodeUnavailable
		}

		out.Steps = append(out.Steps, res)
		out.ExitCode = res.ExitCode
		metrics.GCSequence.StepFinished(string(st.step), err == nil && res.ExitCode == 0, res.Elapsed)

		logger.Debug().
			Str("step", string(st.step)).
			Int("exit_code", res.ExitCode).
			Dur("elapsed", res.Elapsed).
			Str("output", res.Output).
			Msg("step finished")

		if err != nil {
			out.fail(st.step, ExitCodeUnavailable, err)
			return
		}

		if res.ExitCode == 0 {
			continue
		}

		// The container listing is diagnostic only.
		if st.step == StepList {
			logger.Warn().Int("exit_code", res.ExitCode).Msg("containers listing failed, continuing")
			continue
		}

		if s.cfg.SuccessPolicy == SuccessAllSteps || last {
			out.fail(st.step, res.ExitCode, ErrNonZeroExit)
			return
		}

		logger.Warn().
			Str("step", string(st.step)).
			Int("exit_code", res.ExitCode).
			Msg("step exited with a non-zero code, continuing")
	}

	out.OK = true
}

func (s *Service) stop(ctx context.Context) (StepReport, error) {
	report, err := s.exec.StopContainer(ctx, s.cfg.Container)
	if err != nil || report.ExitCode != 0 || !s.cfg.WaitForState {
		return report, err
	}

	return report, s.waitForState(ctx, StateStopped)
}

func (s *Service) collect(ctx context.Context) (StepReport, error) {
	return s.exec.RunCollector(ctx, s.cfg.Collector)
}

func (s *Service) start(ctx context.Context) (StepReport, error) {
	report, err := s.exec.StartContainer(ctx, s.cfg.Container)
	if err != nil || report.ExitCode != 0 || !s.cfg.WaitForState {
		return report, err
	}

	return report, s.waitForState(ctx, StateRunning)
}

func (s *Service) record(ctx context.Context, logger zerolog.Logger, out Outcome) {
	if s.history == nil {
		return
	}

	err := s.history.Create(ctx, NewRun(out))
	if err != nil {
		logger.Error().Err(err).Msg("gc run cannot be saved")
	}
}

// NewRun converts the outcome into a history record.
func NewRun(out Outcome) *gcrun.Run {
	run := &gcrun.Run{
		ID:         out.RunID,
		StartedAt:  out.StartedAt,
		FinishedAt: out.FinishedAt,
		OK:         out.OK,
		FailedStep: string(out.FailedStep),
		ExitCode:   out.ExitCode,
		Steps:      make([]gcrun.Step, 0, len(out.Steps)),
	}
	if out.Err != nil {
		run.Error = out.Err.Error()
	}

	for _, st := range out.Steps {
		step := gcrun.Step{
			Name:       string(st.Step),
			ExitCode:   st.ExitCode,
			DurationMs: st.Elapsed.Milliseconds(),
			Output:     tail(st.Output, maxRecordedOutput),
		}
		if st.Err != nil {
			step.Error = st.Err.Error()
		}

		run.Steps = append(run.Steps, step)
	}

	return run
}

// tail returns at most n last bytes of s without splitting a UTF-8 character.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}

	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}

	return s[start:]
}
