package gcrun

import (
	"context"
	"sync"
)

const DefaultMemoryCapacity = 100

// MemoryRepo keeps the latest runs in a fixed-size ring.
// It's used when no persistent history storage is configured.
type MemoryRepo struct {
	mu sync.RWMutex

	runs []*Run
	next int
	size int
}

func NewMemoryRepository(capacity int) *MemoryRepo {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}

	return &MemoryRepo{
		runs: make([]*Run, capacity),
	}
}

func (r *MemoryRepo) Create(_ context.Context, run *Run) error {
	cp := *run
	cp.Steps = append([]Step(nil), run.Steps...)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[r.next] = &cp
	r.next = (r.next + 1) % len(r.runs)
	if r.size < len(r.runs) {
		r.size++
	}

	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := 0; i < r.size; i++ {
		run := r.runs[i]
		if run.ID == id {
			cp := *run
			return &cp, nil
		}
	}

	return nil, ErrNotFound
}

func (r *MemoryRepo) List(_ context.Context, limit int) ([]*Run, error) {
	limit = normalizeLimit(limit)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit > r.size {
		limit = r.size
	}

	// Walk backwards from the most recently written slot.
	result := make([]*Run, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.runs)) % len(r.runs)
		cp := *r.runs[idx]
		result = append(result, &cp)
	}

	return result, nil
}
