package restapi

import (
	"context"

	"github.com/lodthe/registry-gc/internal/gcrun"
	"github.com/lodthe/registry-gc/internal/gctrigger"
)

type GCTrigger interface {
	TriggerGC(ctx context.Context) (gctrigger.Outcome, error)
}

type RunStorage interface {
	Get(ctx context.Context, id string) (*gcrun.Run, error)
	List(ctx context.Context, limit int) ([]*gcrun.Run, error)
}
