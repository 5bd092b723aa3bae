package gctrigger

import (
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	// Container is the name of the registry container in the runtime.
	Container string

	Collector CollectorSpec

	// Pause is a fixed delay before the stop, collect and start steps.
	Pause time.Duration

	// Timeout bounds the whole sequence. If 0, the sequence is not bounded.
	Timeout time.Duration

	// WaitForState makes the service poll the container state after stop and start
	// until the container is stopped (running respectively).
	WaitForState bool
	StateTimeout time.Duration
	StatePollRPS int

	SuccessPolicy     SuccessPolicy
	ConcurrencyPolicy ConcurrencyPolicy
}

var DefaultConfig = Config{
	Container: "cargo_registry",

	Collector: CollectorSpec{
		Name:        "gc",
		Image:       "registry:2.5.0",
		Command:     []string{"garbage-collect", "/etc/registry/config.yml"},
		PullMissing: true,
	},

	Pause: time.Second,

	WaitForState: false,
	StateTimeout: 30 * time.Second,
	StatePollRPS: 5,

	SuccessPolicy:     SuccessAllSteps,
	ConcurrencyPolicy: ConcurrencyReject,
}

func (c *Config) validate() error {
	if c.Container == "" {
		return errors.New("container name is required")
	}
	if c.Collector.Name == "" {
		return errors.New("collector container name is required")
	}
	if c.Collector.Image == "" {
		return errors.New("collector image is required")
	}
	if c.Collector.VolumesFrom == "" {
		c.Collector.VolumesFrom = c.Container
	}
	if c.Pause < 0 {
		return errors.New("pause must be >= 0")
	}

	if c.WaitForState {
		if c.StateTimeout <= 0 {
			return errors.New("state timeout must be > 0 when waiting for state")
		}
		if c.StatePollRPS <= 0 {
			return errors.New("state poll rps must be > 0 when waiting for state")
		}
	}

	switch c.SuccessPolicy {
	case SuccessAllSteps, SuccessLastStep:
	case "":
		c.SuccessPolicy = SuccessAllSteps
	default:
		return errors.Errorf("unknown success policy %s", c.SuccessPolicy)
	}

	switch c.ConcurrencyPolicy {
	case ConcurrencyReject, ConcurrencyQueue, ConcurrencyJoin:
	case "":
		c.ConcurrencyPolicy = ConcurrencyReject
	default:
		return errors.Errorf("unknown concurrency policy %s", c.ConcurrencyPolicy)
	}

	return nil
}
