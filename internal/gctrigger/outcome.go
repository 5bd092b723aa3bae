package gctrigger

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ExitCodeUnavailable is reported for steps that failed before producing an exit status.
const ExitCodeUnavailable = -1

var (
	// ErrBusy is returned when a trigger is rejected because another sequence is running.
	ErrBusy = errors.New("gc sequence is already running")

	ErrNonZeroExit = errors.New("non-zero exit code")
)

// StepError describes the step that made the sequence fail.
type StepError struct {
	Step     Step
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	if e.ExitCode == ExitCodeUnavailable {
		return fmt.Sprintf("step %s: %v", e.Step, e.Err)
	}

	return fmt.Sprintf("step %s (exit code %d): %v", e.Step, e.ExitCode, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type StepResult struct {
	Step     Step
	ExitCode int
	Output   string
	Err      error
	Elapsed  time.Duration
}

// Outcome is the result of a single gc sequence.
type Outcome struct {
	RunID string

	OK bool

	// FailedStep is empty when the sequence succeeded.
	// StepPause means the sequence was interrupted before the next step had started.
	FailedStep Step

	// ExitCode is the exit code of the last attempted step.
	ExitCode int

	Err error

	Steps []StepResult

	StartedAt  time.Time
	FinishedAt time.Time

	// Shared is set when the outcome was delivered to several concurrent triggers.
	Shared bool
}

func (o *Outcome) fail(step Step, exitCode int, err error) {
	o.OK = false
	o.FailedStep = step
	o.ExitCode = exitCode
	o.Err = &StepError{
		Step:     step,
		ExitCode: exitCode,
		Err:      err,
	}
}

// Called returns steps that have been attempted, in order.
func (o *Outcome) Called() []Step {
	steps := make([]Step, 0, len(o.Steps))
	for _, s := range o.Steps {
		steps = append(steps, s.Step)
	}

	return steps
}
