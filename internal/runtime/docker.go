package runtime

import (
	"context"
	"fmt"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
)

// DockerConfig selects the docker engine endpoint. Empty fields fall back
// to the DOCKER_HOST / DOCKER_API_VERSION environment.
type DockerConfig struct {
	Host       string
	APIVersion string
}

type dockerAPI interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	Ping(ctx context.Context) (types.Ping, error)
	Close() error
}

// NewDockerConnector returns a Connector that dials the docker engine on every call.
func NewDockerConnector(cfg DockerConfig) Connector {
	return func(ctx context.Context) (Inspector, error) {
		opts := []client.Opt{client.FromEnv}
		if cfg.Host != "" {
			opts = append(opts, client.WithHost(cfg.Host))
		}
		if cfg.APIVersion != "" {
			opts = append(opts, client.WithVersion(cfg.APIVersion))
		} else {
			opts = append(opts, client.WithAPIVersionNegotiation())
		}

		cli, err := client.NewClientWithOpts(opts...)
		if err != nil {
			return nil, fmt.Errorf("create docker client: %w", err)
		}
		return &dockerInspector{api: cli}, nil
	}
}

type dockerInspector struct {
	api dockerAPI
}

func (d *dockerInspector) Inspect(ctx context.Context, idOrName string) (ContainerInfo, error) {
	resp, err := d.api.ContainerInspect(ctx, idOrName)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return ContainerInfo{}, fmt.Errorf("docker container %s: %w", idOrName, ErrContainerNotFound)
		}
		return ContainerInfo{}, fmt.Errorf("inspect docker container %s: %w", idOrName, err)
	}

	info := ContainerInfo{Networks: map[string]Attachment{}}
	if resp.ContainerJSONBase != nil {
		info.ID = resp.ID
		info.Name = resp.Name
		if resp.HostConfig != nil {
			info.NetworkMode = string(resp.HostConfig.NetworkMode)
		}
	}
	if resp.NetworkSettings != nil {
		for name, endpoint := range resp.NetworkSettings.Networks {
			if endpoint == nil {
				continue
			}
			info.Networks[name] = Attachment{IPAddress: endpoint.IPAddress}
		}
	}
	return info, nil
}

func (d *dockerInspector) Ping(ctx context.Context) error {
	if _, err := d.api.Ping(ctx); err != nil {
		return fmt.Errorf("ping docker engine: %w", err)
	}
	return nil
}

func (d *dockerInspector) Close() error {
	return d.api.Close()
}
