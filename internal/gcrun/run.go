package gcrun

import (
	"time"

	"github.com/google/uuid"
)

// Run is a recorded attempt of the stop/collect/start sequence.
type Run struct {
	ID string `dynamodbav:"Id" json:"id"`

	StartedAt  time.Time `dynamodbav:"StartedAt" json:"started_at"`
	FinishedAt time.Time `dynamodbav:"FinishedAt" json:"finished_at"`

	OK         bool   `dynamodbav:"Ok" json:"ok"`
	FailedStep string `dynamodbav:"FailedStep,omitempty" json:"failed_step,omitempty"`
	ExitCode   int    `dynamodbav:"ExitCode" json:"exit_code"`
	Error      string `dynamodbav:"Error,omitempty" json:"error,omitempty"`

	Steps []Step `dynamodbav:"Steps" json:"steps"`
}

type Step struct {
	Name       string `dynamodbav:"Name" json:"name"`
	ExitCode   int    `dynamodbav:"ExitCode" json:"exit_code"`
	DurationMs int64  `dynamodbav:"DurationMs" json:"duration_ms"`
	Output     string `dynamodbav:"Output,omitempty" json:"output,omitempty"`
	Error      string `dynamodbav:"Error,omitempty" json:"error,omitempty"`
}

func NewID() string {
	return uuid.New().String()
}

// Elapsed returns the wall time of the run.
func (r *Run) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
