package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/flowprobe/flowprobe/internal/admin"
	"github.com/flowprobe/flowprobe/internal/config"
	"github.com/flowprobe/flowprobe/internal/docker"
	"github.com/flowprobe/flowprobe/internal/identity"
	"github.com/flowprobe/flowprobe/internal/logging"
	"github.com/flowprobe/flowprobe/internal/topology"
)

// rootFlags holds the persistent flags. They are applied over the config only
// when set on the command line.
type rootFlags struct {
	configFile string
	topology   string
	network    string
	docker     bool
	dockerHost string
	port       int
	timeout    time.Duration
	output     string
	logLevel   string
}

// app is the state shared by every subcommand once the root has run.
type app struct {
	flags   rootFlags
	cfg     *config.Config
	admin   *admin.Client
	cleanup func()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "flowprobe",
		Short: "Probe the admin endpoints of a local peer-to-peer testbed",
		Long: `flowprobe reads the testbed's container network, resolves the identity of
every role node through its admin endpoint and issues diagnostic commands
(ping, DHT dump, publish, ...) against a chosen node.`,
		Version:           "0.1.0",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configFile, "config", "", "path to config file (yaml)")
	pf.StringVarP(&a.flags.topology, "topology", "t", "", "topology file produced by docker network inspect")
	pf.StringVar(&a.flags.network, "network", "", "docker network to inspect when --docker is set")
	pf.BoolVar(&a.flags.docker, "docker", false, "read the topology from the docker daemon instead of a file")
	pf.StringVar(&a.flags.dockerHost, "docker-host", "", "docker daemon address (default from environment)")
	pf.IntVarP(&a.flags.port, "port", "p", 0, "admin endpoint port")
	pf.DurationVar(&a.flags.timeout, "timeout", 0, "per-request timeout (0 waits forever)")
	pf.StringVarP(&a.flags.output, "output", "o", "table", "output format (table, json)")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		newNodesCmd(a),
		newExploreCmd(a),
		newConsoleCmd(a),
	)
	root.AddCommand(adminCommands(a)...)
	return root
}

// setup loads configuration with precedence defaults < file < env < flags and
// initializes logging, metrics and the admin client.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.flags.output != "table" && a.flags.output != "json" {
		return fmt.Errorf("unknown output format %q", a.flags.output)
	}

	cfg := config.DefaultConfig()
	if a.flags.configFile != "" {
		c, err := config.LoadConfigFromFile(a.flags.configFile)
		if err != nil {
			return fmt.Errorf("failed loading config: %w", err)
		}
		cfg = c
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		return fmt.Errorf("invalid environment configuration: %w", err)
	}
	a.applyFlags(cmd, cfg)
	a.cfg = cfg

	cleanup, err := initLogging(cfg)
	if err != nil {
		return err
	}
	a.cleanup = cleanup
	for _, w := range cfg.Validate() {
		logging.Get().Warn().Msg(w)
	}

	initMetricsAndInflux(cmd.Context(), cfg)

	a.admin = admin.NewClient(admin.Options{
		Port:    cfg.AdminPort,
		Path:    cfg.AdminPath,
		Timeout: cfg.RequestTimeout,
	})
	return nil
}

func (a *app) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("topology") {
		cfg.TopologyFile = a.flags.topology
	}
	if fs.Changed("network") {
		cfg.Network = a.flags.network
	}
	if fs.Changed("docker") {
		cfg.UseDocker = a.flags.docker
	}
	if fs.Changed("docker-host") {
		cfg.DockerHost = a.flags.dockerHost
	}
	if fs.Changed("port") {
		cfg.AdminPort = a.flags.port
	}
	if fs.Changed("timeout") {
		cfg.RequestTimeout = a.flags.timeout
	}
	if fs.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
}

func (a *app) close() {
	if a.cleanup != nil {
		a.cleanup()
		a.cleanup = nil
	}
}

// loadTopology reads the topology from the configured source.
func (a *app) loadTopology(ctx context.Context) (*topology.Topology, error) {
	opts := topology.Options{NamePrefixLen: a.cfg.NamePrefixLen}
	if !a.cfg.UseDocker {
		return topology.LoadFile(a.cfg.TopologyFile, opts)
	}
	if err := ensureDockerSocketAccessible(a.cfg.DockerHost); err != nil {
		return nil, err
	}
	cli, err := docker.NewClientForHost(a.cfg.DockerHost)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	defer cli.Close()
	return cli.Topology(ctx, a.cfg.Network, opts)
}

// registry loads the topology and, when resolve is set, queries the identity
// of every role node. Without resolve the registry only knows addresses.
func (a *app) registry(ctx context.Context, resolve bool) (*identity.Registry, error) {
	topo, err := a.loadTopology(ctx)
	if err != nil {
		return nil, err
	}
	logging.Get().Debug().Int("nodes", topo.Len()).Msg("topology loaded")
	if !resolve {
		return identity.NewRegistry(topo, nil), nil
	}
	return identity.NewResolver(a.admin, a.cfg.Roles).Resolve(ctx, topo)
}
