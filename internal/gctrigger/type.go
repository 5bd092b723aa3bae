package gctrigger

// Step names one action of the gc sequence.
type Step string

const (
	StepList    Step = "list"
	StepStop    Step = "stop"
	StepCollect Step = "collect"
	StepStart   Step = "start"

	// StepPause is reported when the sequence was interrupted during a pause between steps.
	StepPause Step = "pause"
)

// ExecutorType names an Executor implementation.
type ExecutorType string

const (
	ExecutorDockerEngine ExecutorType = "DOCKER_ENGINE"
	ExecutorDockerCLI    ExecutorType = "DOCKER_CLI"
)

// SuccessPolicy decides how exit codes of the steps affect the outcome.
type SuccessPolicy string

const (
	// SuccessAllSteps treats a non-zero exit code of any step as a failure of the sequence.
	SuccessAllSteps SuccessPolicy = "ALL_STEPS"

	// SuccessLastStep only aborts on execution errors. Non-zero exit codes of intermediate
	// steps are logged, and the outcome depends on the exit code of the final step.
	SuccessLastStep SuccessPolicy = "LAST_STEP"
)

// ConcurrencyPolicy decides what happens to a trigger that arrives while a sequence is running.
type ConcurrencyPolicy string

const (
	ConcurrencyReject ConcurrencyPolicy = "REJECT"
	ConcurrencyQueue  ConcurrencyPolicy = "QUEUE"
	ConcurrencyJoin   ConcurrencyPolicy = "JOIN"
)

// ContainerState is a simplified runtime state of a container.
type ContainerState string

const (
	StateUnknown ContainerState = "unknown"
	StateRunning ContainerState = "running"
	StateStopped ContainerState = "stopped"
	StateMissing ContainerState = "missing"
)
