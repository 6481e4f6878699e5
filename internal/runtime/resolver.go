package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

const (
	// DefaultNetworkMode is the network mode reported for containers started without --network.
	DefaultNetworkMode = "default"
	// DefaultNetworkAlias is the attachment name that DefaultNetworkMode refers to.
	DefaultNetworkAlias = "bridge"
)

var (
	// ErrContainerNotFound is returned by connectors when the container does not exist.
	ErrContainerNotFound = errors.New("container not found")
	// ErrNetworkNotFound matches every NetworkNotFoundError.
	ErrNetworkNotFound = errors.New("network not found")
	// ErrNoAddress is returned when the attachment exists but carries no IP.
	ErrNoAddress = errors.New("network attachment has no IP address")
)

// NetworkNotFoundError reports a network name absent from a container's attachments.
type NetworkNotFoundError struct {
	Container string
	Network   string
	Available []string
}

func (e *NetworkNotFoundError) Error() string {
	return fmt.Sprintf("container %s is not attached to network %q (attached: %s); pass the network name explicitly, docker inspect lists them",
		e.Container, e.Network, strings.Join(e.Available, ", "))
}

// Is lets errors.Is match ErrNetworkNotFound.
func (e *NetworkNotFoundError) Is(target error) bool {
	return target == ErrNetworkNotFound
}

// Attachment is one network a container is connected to.
type Attachment struct {
	IPAddress string
}

// ContainerInfo is the network metadata the resolver needs.
type ContainerInfo struct {
	ID          string
	Name        string
	NetworkMode string
	Networks    map[string]Attachment
}

// Inspector fetches container metadata over one open connection.
type Inspector interface {
	Inspect(ctx context.Context, idOrName string) (ContainerInfo, error)
	Close() error
}

// Connector opens a fresh Inspector. The resolver calls it once per lookup.
type Connector func(ctx context.Context) (Inspector, error)

// Pinger is implemented by inspectors that can check the runtime is answering.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe opens a connection and pings the runtime when the inspector supports it.
func Probe(ctx context.Context, connect Connector) error {
	inspector, err := connect(ctx)
	if err != nil {
		return fmt.Errorf("connect to container runtime: %w", err)
	}
	defer inspector.Close()

	if pinger, ok := inspector.(Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

// Resolver maps a container and optional network to the container's IP.
type Resolver struct {
	connect      Connector
	defaultAlias string
	logger       *slog.Logger
}

// NewResolver returns a Resolver. An empty defaultAlias means DefaultNetworkAlias.
func NewResolver(connect Connector, defaultAlias string, logger *slog.Logger) *Resolver {
	if defaultAlias == "" {
		defaultAlias = DefaultNetworkAlias
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		connect:      connect,
		defaultAlias: defaultAlias,
		logger:       logger,
	}
}

// ResolveIP returns the container's address on network. When network is
// empty the container's network mode is used, with the default mode mapped
// to the default network alias.
func (r *Resolver) ResolveIP(ctx context.Context, idOrName string, network string) (string, error) {
	if r.connect == nil {
		return "", fmt.Errorf("container runtime connector must be provided")
	}
	if strings.TrimSpace(idOrName) == "" {
		return "", fmt.Errorf("container id or name must be provided")
	}

	inspector, err := r.connect(ctx)
	if err != nil {
		return "", fmt.Errorf("connect to container runtime: %w", err)
	}
	defer func() {
		if cerr := inspector.Close(); cerr != nil {
			r.logger.Debug("closing runtime connection failed", slog.Any("error", cerr))
		}
	}()

	info, err := inspector.Inspect(ctx, idOrName)
	if err != nil {
		return "", err
	}

	name := network
	if name == "" {
		name = info.NetworkMode
		if name == DefaultNetworkMode {
			name = r.defaultAlias
		}
	}

	attachment, ok := info.Networks[name]
	if !ok {
		return "", &NetworkNotFoundError{
			Container: idOrName,
			Network:   name,
			Available: networkNames(info.Networks),
		}
	}
	if attachment.IPAddress == "" {
		return "", fmt.Errorf("container %s on network %q: %w", idOrName, name, ErrNoAddress)
	}

	r.logger.Debug("resolved container address",
		slog.String("container", idOrName),
		slog.String("network", name),
		slog.String("ip", attachment.IPAddress),
	)
	return attachment.IPAddress, nil
}

func networkNames(networks map[string]Attachment) []string {
	names := make([]string, 0, len(networks))
	for name := range networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
