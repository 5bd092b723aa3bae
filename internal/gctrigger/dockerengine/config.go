package dockerengine

import "time"

type Config struct {
	// DaemonURL of the Docker daemon, e.g. unix:///var/run/docker.sock or ssh://user@host.
	// If nil, DOCKER_HOST and other environment variables are used.
	DaemonURL *string

	// StopTimeout is how long the daemon waits for the registry to exit before killing it.
	StopTimeout time.Duration
}

var DefaultConfig = Config{
	DaemonURL:   nil,
	StopTimeout: 10 * time.Second,
}
