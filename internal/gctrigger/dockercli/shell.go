package dockercli

import "github.com/lodthe/registry-gc/internal/gctrigger"

// argsListContainers generates arguments to print all containers, including stopped ones.
func argsListContainers() []string {
	return []string{"ps", "-a"}
}

func argsStopContainer(name string) []string {
	return []string{"stop", name}
}

// argsRunCollector generates arguments to run the collector with the volumes of the registry container.
// The container runs attached and without a TTY, so the exit code of `docker run` is the exit code of the collector.
func argsRunCollector(spec gctrigger.CollectorSpec) []string {
	args := []string{"run", "--name", spec.Name, "--rm", "--volumes-from", spec.VolumesFrom}
	// Missing images are pulled by default.
	if !spec.PullMissing {
		args = append(args, "--pull", "never")
	}

	args = append(args, spec.Image)

	return append(args, spec.Command...)
}

func argsStartContainer(name string) []string {
	return []string{"start", name}
}

// argsContainerStatus generates arguments to print the Docker status of a container, e.g. "running".
func argsContainerStatus(name string) []string {
	return []string{"inspect", "--type", "container", "-f", "{{.State.Status}}", name}
}
