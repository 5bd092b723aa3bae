package gctrigger

import (
	"context"
	"strings"
)

// Executor issues commands to the container runtime that owns the registry container.
//
// A returned error means the command could not be executed at all (the runtime is unreachable,
// the container does not exist, the binary is missing). A command that has been executed
// but failed is reported with a non-zero StepReport.ExitCode and a nil error.
type Executor interface {
	ListContainers(ctx context.Context) (StepReport, error)
	StopContainer(ctx context.Context, name string) (StepReport, error)
	RunCollector(ctx context.Context, spec CollectorSpec) (StepReport, error)
	StartContainer(ctx context.Context, name string) (StepReport, error)

	ContainerState(ctx context.Context, name string) (ContainerState, error)
}

type StepReport struct {
	ExitCode int
	Output   string
}

// CollectorSpec describes the one-shot container that runs the registry garbage collector.
type CollectorSpec struct {
	// Name of the auxiliary container. It is removed after exit.
	Name string

	Image string

	// VolumesFrom is the registry container whose volumes are mounted.
	// If empty, Config.Container is used.
	VolumesFrom string

	// Command and its arguments, e.g. ["garbage-collect", "/etc/registry/config.yml"].
	Command []string

	// PullMissing makes the executor pull Image when it's absent locally.
	PullMissing bool
}

// MapDockerState maps a Docker container state to ContainerState.
func MapDockerState(state string) ContainerState {
	switch strings.ToLower(state) {
	case "running", "restarting":
		return StateRunning
	case "created", "exited", "dead":
		return StateStopped
	default:
		return StateUnknown
	}
}
