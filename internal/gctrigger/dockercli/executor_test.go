package dockercli

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/lodthe/registry-gc/internal/gctrigger"

	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDocker prints its arguments and the FAKE_DOCKER_OUTPUT variable, then exits with FAKE_DOCKER_EXIT.
const fakeDocker = `#!/bin/sh
echo "$@"
if [ -n "$FAKE_DOCKER_OUTPUT" ]; then
	echo "$FAKE_DOCKER_OUTPUT" >&2
fi
exit ${FAKE_DOCKER_EXIT:-0}
`

func newFakeExecutor(t *testing.T) *Executor {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported")
	}

	path := filepath.Join(t.TempDir(), "docker")
	require.NoError(t, os.WriteFile(path, []byte(fakeDocker), 0o755))

	exec, err := New(zlog.Logger, Config{Binary: path})
	require.NoError(t, err)

	return exec
}

func TestExecutor_Steps(t *testing.T) {
	exec := newFakeExecutor(t)
	ctx := context.Background()

	report, err := exec.ListContainers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.ExitCode)
	assert.Equal(t, "ps -a\n", report.Output)

	report, err = exec.StopContainer(ctx, "cargo_registry")
	require.NoError(t, err)
	assert.Equal(t, "stop cargo_registry\n", report.Output)

	report, err = exec.RunCollector(ctx, gctrigger.CollectorSpec{
		Name:        "gc",
		Image:       "registry:2.5.0",
		VolumesFrom: "cargo_registry",
		Command:     []string{"garbage-collect", "/etc/registry/config.yml"},
		PullMissing: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "run --name gc --rm --volumes-from cargo_registry registry:2.5.0 garbage-collect /etc/registry/config.yml\n", report.Output)

	report, err = exec.StartContainer(ctx, "cargo_registry")
	require.NoError(t, err)
	assert.Equal(t, "start cargo_registry\n", report.Output)
}

func TestExecutor_NonZeroExit(t *testing.T) {
	exec := newFakeExecutor(t)
	t.Setenv("FAKE_DOCKER_EXIT", "1")
	t.Setenv("FAKE_DOCKER_OUTPUT", "Error response from daemon: driver failed")

	report, err := exec.StopContainer(context.Background(), "cargo_registry")
	require.NoError(t, err)

	assert.Equal(t, 1, report.ExitCode)
	assert.Contains(t, report.Output, "driver failed")
}

func TestExecutor_MissingContainer(t *testing.T) {
	exec := newFakeExecutor(t)
	t.Setenv("FAKE_DOCKER_EXIT", "1")
	t.Setenv("FAKE_DOCKER_OUTPUT", "Error response from daemon: No such container: cargo_registry")

	report, err := exec.StopContainer(context.Background(), "cargo_registry")
	require.Error(t, err)
	assert.Equal(t, 1, report.ExitCode)
	assert.Contains(t, err.Error(), "cargo_registry")

	_, err = exec.StartContainer(context.Background(), "cargo_registry")
	assert.Error(t, err)
}

func TestExecutor_MissingBinary(t *testing.T) {
	_, err := New(zlog.Logger, Config{Binary: filepath.Join(t.TempDir(), "docker")})
	assert.Error(t, err)
}

func TestExecutor_BinaryRemovedAfterStart(t *testing.T) {
	exec := newFakeExecutor(t)
	require.NoError(t, os.Remove(exec.cfg.Binary))

	_, err := exec.ListContainers(context.Background())
	assert.Error(t, err)
}

func TestExecutor_ContainerState(t *testing.T) {
	cases := []struct {
		name    string
		exit    string
		output  string
		want    gctrigger.ContainerState
		wantErr bool
	}{
		{name: "running", exit: "0", want: gctrigger.StateRunning},
		{name: "exited", exit: "0", want: gctrigger.StateStopped},
		{name: "paused", exit: "0", want: gctrigger.StateUnknown},
		{name: "missing", exit: "1", output: "Error: No such container: missing", want: gctrigger.StateMissing},
		{name: "broken", exit: "1", output: "Cannot connect to the Docker daemon", want: gctrigger.StateUnknown, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := newFakeExecutor(t)
			t.Setenv("FAKE_DOCKER_EXIT", tc.exit)
			t.Setenv("FAKE_DOCKER_OUTPUT", tc.output)

			// The fake prints its arguments, so make the last one the reported status.
			exec.cfg.Binary = wrapStatus(t, exec.cfg.Binary)

			got, err := exec.ContainerState(context.Background(), tc.name)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

// wrapStatus creates a script that prints only the last argument on success, like `docker inspect -f` does.
func wrapStatus(t *testing.T, fake string) string {
	t.Helper()

	script := `#!/bin/sh
for last; do :; done
if [ "${FAKE_DOCKER_EXIT:-0}" = "0" ]; then
	echo "$last"
	exit 0
fi
exec ` + fake + ` "$@" >/dev/null
`
	path := filepath.Join(t.TempDir(), "docker-inspect")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	return path
}
