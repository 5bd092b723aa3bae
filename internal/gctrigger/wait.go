package gctrigger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/ratelimit"
)

// Pause is the default Sleeper.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()

	case <-t.C:
		return nil
	}
}

// waitForState polls the registry container until it reaches the wanted state.
// The Docker API has no way to subscribe to a single container state change without
// consuming the whole event stream, so we poll with a limited rate.
func (s *Service) waitForState(ctx context.Context, want ContainerState) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.StateTimeout)
	defer cancel()

	rl := ratelimit.New(s.cfg.StatePollRPS)

	var last ContainerState
	for {
		rl.Take()

		state, err := s.exec.ContainerState(ctx, s.cfg.Container)
		if err != nil {
			return errors.Wrap(err, "failed to get container state")
		}
		if state == want {
			return nil
		}
		if state == StateMissing {
			return errors.Errorf("container %s disappeared while waiting for it to be %s", s.cfg.Container, want)
		}

		if state != last {
			s.logger.Debug().Str("state", string(state)).Str("want", string(want)).Msg("waiting for the container state")
			last = state
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "container %s is still %s, want %s", s.cfg.Container, state, want)

		default:
		}
	}
}
