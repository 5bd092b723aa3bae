package dockercli

type Config struct {
	// Binary is a path to the docker CLI or its name in PATH.
	Binary string
}

var DefaultConfig = Config{
	Binary: "docker",
}
