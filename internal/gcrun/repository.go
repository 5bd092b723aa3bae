package gcrun

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNotFound = errors.New("not found")

const DefaultListLimit = 20
const MaxListLimit = 100

type Repository interface {
	Create(ctx context.Context, run *Run) error
	Get(ctx context.Context, id string) (*Run, error)

	// List returns at most limit runs, the most recently started first.
	List(ctx context.Context, limit int) ([]*Run, error)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}

	return limit
}
