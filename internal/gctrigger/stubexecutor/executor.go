package stubexecutor

import (
	"context"
	"sync"
	"time"

	"github.com/lodthe/registry-gc/internal/gctrigger"
)

const (
	OpList    = "list"
	OpStop    = "stop"
	OpCollect = "collect"
	OpStart   = "start"
	OpState   = "state"
	OpPause   = "pause"
)

type response struct {
	report gctrigger.StepReport
	err    error
}

// Executor is a stub executor for tests. It records every call in order
// and returns scripted responses. Steps without a scripted response succeed.
type Executor struct {
	mu sync.Mutex

	calls      []string
	containers []string
	pauses     []time.Duration
	collector  gctrigger.CollectorSpec

	responses map[gctrigger.Step]response

	states   []gctrigger.ContainerState
	stateErr error

	collectStarted chan struct{}
	collectRelease chan struct{}
}

func New() *Executor {
	return &Executor{
		responses: make(map[gctrigger.Step]response),
	}
}

// Respond scripts the result of the given step.
func (e *Executor) Respond(step gctrigger.Step, report gctrigger.StepReport, err error) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.responses[step] = response{report: report, err: err}

	return e
}

// SetStates scripts the states returned by ContainerState, one per call.
// The last state is repeated once the list is exhausted.
func (e *Executor) SetStates(states ...gctrigger.ContainerState) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.states = states

	return e
}

func (e *Executor) SetStateError(err error) *Executor {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stateErr = err

	return e
}

// BlockCollector makes RunCollector block until release is called.
// started receives a value every time RunCollector is entered.
func (e *Executor) BlockCollector() (started <-chan struct{}, release func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.collectStarted = make(chan struct{}, 16)
	e.collectRelease = make(chan struct{})

	var once sync.Once

	return e.collectStarted, func() {
		once.Do(func() {
			close(e.collectRelease)
		})
	}
}

// Calls returns the recorded operations in order.
func (e *Executor) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.calls...)
}

// Count returns how many times op has been called.
func (e *Executor) Count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	var n int
	for _, c := range e.calls {
		if c == op {
			n++
		}
	}

	return n
}

// Containers returns container names passed to stop, start and state calls.
func (e *Executor) Containers() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]string(nil), e.containers...)
}

func (e *Executor) Collector() gctrigger.CollectorSpec {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.collector
}

// Pauses returns the durations passed to Sleep.
func (e *Executor) Pauses() []time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]time.Duration(nil), e.pauses...)
}

// Sleep records a pause without sleeping. Use it as a gctrigger.Sleeper.
func (e *Executor) Sleep(ctx context.Context, d time.Duration) error {
	e.mu.Lock()
	e.calls = append(e.calls, OpPause)
	e.pauses = append(e.pauses, d)
	e.mu.Unlock()

	return ctx.Err()
}

func (e *Executor) ListContainers(_ context.Context) (gctrigger.StepReport, error) {
	e.record(OpList, "")

	return e.respond(gctrigger.StepList)
}

func (e *Executor) StopContainer(_ context.Context, name string) (gctrigger.StepReport, error) {
	e.record(OpStop, name)

	return e.respond(gctrigger.StepStop)
}

func (e *Executor) RunCollector(ctx context.Context, spec gctrigger.CollectorSpec) (gctrigger.StepReport, error) {
	e.mu.Lock()
	e.calls = append(e.calls, OpCollect)
	e.collector = spec
	started, release := e.collectStarted, e.collectRelease
	e.mu.Unlock()

	if started != nil {
		started <- struct{}{}

		select {
		case <-release:
		case <-ctx.Done():
			return gctrigger.StepReport{}, ctx.Err()
		}
	}

	return e.respond(gctrigger.StepCollect)
}

func (e *Executor) StartContainer(_ context.Context, name string) (gctrigger.StepReport, error) {
	e.record(OpStart, name)

	return e.respond(gctrigger.StepStart)
}

func (e *Executor) ContainerState(_ context.Context, name string) (gctrigger.ContainerState, error) {
	e.record(OpState, name)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stateErr != nil {
		return gctrigger.StateUnknown, e.stateErr
	}
	if len(e.states) == 0 {
		return gctrigger.StateUnknown, nil
	}

	state := e.states[0]
	if len(e.states) > 1 {
		e.states = e.states[1:]
	}

	return state, nil
}

func (e *Executor) record(op, container string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, op)
	if container != "" {
		e.containers = append(e.containers, container)
	}
}

func (e *Executor) respond(step gctrigger.Step) (gctrigger.StepReport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	resp := e.responses[step]

	return resp.report, resp.err
}
