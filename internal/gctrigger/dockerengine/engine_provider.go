package dockerengine

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/docker/cli/cli/connhelper"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	dockercli "github.com/docker/docker/client"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"
)

// engineAPI is the part of the Docker Engine client used by the executor.
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStop(ctx context.Context, containerID string, options container.StopOptions) error
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error

	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)

	Close() error
}

// engineProvider simplifies communication with Docker Engine API.
type engineProvider struct {
	cli engineAPI
}

func newClient(daemonURL *string) (*dockercli.Client, error) {
	opts := []dockercli.Opt{
		dockercli.FromEnv,
		dockercli.WithAPIVersionNegotiation(),
	}

	if daemonURL != nil {
		// ssh:// daemons are reached through `docker system dial-stdio` on the remote host.
		helper, err := connhelper.GetConnectionHelper(*daemonURL)
		if err != nil {
			return nil, errors.Wrap(err, "invalid daemon url")
		}

		if helper != nil {
			httpCli := &http.Client{
				Transport: &http.Transport{
					DialContext: helper.Dialer,
				},
			}

			opts = append(opts,
				dockercli.WithHTTPClient(httpCli),
				dockercli.WithHost(helper.Host),
				dockercli.WithDialContext(helper.Dialer),
			)
		} else {
			opts = append(opts, dockercli.WithHost(*daemonURL))
		}
	}

	cli, err := dockercli.NewClientWithOpts(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "docker client cannot be created")
	}

	return cli, nil
}

func newProvider(cli engineAPI) *engineProvider {
	return &engineProvider{
		cli: cli,
	}
}

func (p *engineProvider) close() error {
	return p.cli.Close()
}

func (p *engineProvider) getContainers(ctx context.Context) ([]container.Summary, error) {
	return p.cli.ContainerList(ctx, container.ListOptions{
		All: true,
	})
}

func (p *engineProvider) inspectContainer(ctx context.Context, name string) (container.InspectResponse, error) {
	return p.cli.ContainerInspect(ctx, name)
}

func (p *engineProvider) stopContainer(ctx context.Context, name string, timeout time.Duration) error {
	seconds := int(timeout.Seconds())

	return p.cli.ContainerStop(ctx, name, container.StopOptions{
		Timeout: &seconds,
	})
}

func (p *engineProvider) startContainer(ctx context.Context, name string) error {
	return p.cli.ContainerStart(ctx, name, container.StartOptions{})
}

func (p *engineProvider) createContainer(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, name string) (container.CreateResponse, error) {
	return p.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
}

// waitContainer must be called before the container is started,
// otherwise a fast exit can be missed.
func (p *engineProvider) waitContainer(ctx context.Context, id string) (<-chan container.WaitResponse, <-chan error) {
	return p.cli.ContainerWait(ctx, id, container.WaitConditionNextExit)
}

// Keep in mind that you have to close the returned reader.
func (p *engineProvider) containerLogs(ctx context.Context, id string) (io.ReadCloser, error) {
	return p.cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
}

func (p *engineProvider) removeContainer(ctx context.Context, id string, force bool) error {
	return p.cli.ContainerRemove(ctx, id, container.RemoveOptions{
		RemoveVolumes: false,
		Force:         force,
	})
}

func (p *engineProvider) imageExists(ctx context.Context, ref string) (bool, error) {
	images, err := p.cli.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", ref)),
	})
	if err != nil {
		return false, err
	}

	return len(images) > 0, nil
}

func (p *engineProvider) pullImage(ctx context.Context, ref string) (io.ReadCloser, error) {
	return p.cli.ImagePull(ctx, ref, image.PullOptions{})
}
