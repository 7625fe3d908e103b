package docker

import (
	"context"
	"fmt"
	"sort"

	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"

	"github.com/flowprobe/flowprobe/internal/logging"
	"github.com/flowprobe/flowprobe/internal/topology"
)

// DefaultSocketPath is the standard Docker socket location.
const DefaultSocketPath = "/var/run/docker.sock"

// Client reads testbed topology straight from the Docker daemon.
type Client interface {
	// Topology inspects the named network and returns its attached containers
	// in the order `docker network inspect` prints them.
	Topology(ctx context.Context, networkName string, opts topology.Options) (*topology.Topology, error)
	Close() error
}

// networkAPI is the subset of the Docker SDK client used here
type networkAPI interface {
	NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error)
	Close() error
}

// sdkClient is the production implementation using the official Docker SDK
type sdkClient struct {
	cli networkAPI
}

// NewClient returns an SDK-backed Docker client configured from the environment
func NewClient() (Client, error) {
	return NewClientForHost("")
}

// NewClientForHost returns a client configured for a specific host endpoint.
// host may be empty to indicate default behavior (FromEnv).
func NewClientForHost(host string) (Client, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	} else {
		opts = append(opts, client.FromEnv)
	}
	c, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}
	return &sdkClient{cli: c}, nil
}

func (s *sdkClient) Topology(ctx context.Context, networkName string, opts topology.Options) (*topology.Topology, error) {
	insp, err := s.cli.NetworkInspect(ctx, networkName, network.InspectOptions{})
	if err != nil {
		return nil, fmt.Errorf("inspect network %s: %w", networkName, err)
	}
	containers := containersFromInspect(insp)
	logging.Get().Debug().Str("network", networkName).Int("containers", len(containers)).Msg("inspected docker network")
	t, err := topology.Build(containers, opts)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", networkName, err)
	}
	return t, nil
}

func (s *sdkClient) Close() error {
	return s.cli.Close()
}

// containersFromInspect flattens the endpoint map sorted by container ID, the
// same order the CLI's JSON encoding produces.
func containersFromInspect(insp network.Inspect) []topology.Container {
	ids := make([]string, 0, len(insp.Containers))
	for id := range insp.Containers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]topology.Container, 0, len(ids))
	for _, id := range ids {
		ep := insp.Containers[id]
		out = append(out, topology.Container{ID: id, Name: ep.Name, IPv4Address: ep.IPv4Address})
	}
	return out
}
