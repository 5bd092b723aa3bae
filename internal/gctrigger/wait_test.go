package gctrigger_test

import (
	"context"
	"testing"
	"time"

	"github.com/lodthe/registry-gc/internal/gctrigger"

	"github.com/stretchr/testify/assert"
)

func TestPause(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	cases := []struct {
		name    string
		ctx     context.Context
		d       time.Duration
		wantErr error
		minTime time.Duration
	}{
		{name: "zero", ctx: context.Background(), d: 0},
		{name: "negative", ctx: context.Background(), d: -time.Second},
		{name: "zero with cancelled context", ctx: cancelled, d: 0, wantErr: context.Canceled},
		{name: "cancelled context", ctx: cancelled, d: time.Hour, wantErr: context.Canceled},
		{name: "timer fires", ctx: context.Background(), d: 20 * time.Millisecond, minTime: 20 * time.Millisecond},
	}

	for _, tc := range cases {
		startedAt := time.Now()
		err := gctrigger.Pause(tc.ctx, tc.d)
		elapsed := time.Since(startedAt)

		if tc.wantErr != nil {
			assert.ErrorIs(t, err, tc.wantErr, tc.name)
		} else {
			assert.NoError(t, err, tc.name)
		}
		assert.GreaterOrEqual(t, elapsed, tc.minTime, tc.name)
		assert.Less(t, elapsed, 10*time.Second, tc.name)
	}
}

func TestPause_CancelledWhileWaiting(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	startedAt := time.Now()
	err := gctrigger.Pause(ctx, time.Hour)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(startedAt), 10*time.Second)
}
