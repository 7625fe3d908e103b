package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultRoles are the node-name substrings whose nodes expose an admin endpoint
// worth querying for identity.
var DefaultRoles = []string{"access", "collection", "consensus", "execution", "verification"}

// Config holds runtime configuration for flowprobe
type Config struct {
	// Topology source. When UseDocker is set the network is inspected live
	// through the Docker API instead of reading TopologyFile.
	TopologyFile string `json:"topology_file" yaml:"topology_file"`
	UseDocker    bool   `json:"use_docker" yaml:"use_docker"`
	Network      string `json:"network" yaml:"network"`
	DockerHost   string `json:"docker_host" yaml:"docker_host"`
	// NamePrefixLen strips a fixed number of characters from container names.
	// Zero strips the compose project prefix up to the first '_' or '-'.
	NamePrefixLen int `json:"name_prefix_len" yaml:"name_prefix_len"`

	// Admin endpoint
	AdminPort int    `json:"admin_port" yaml:"admin_port"`
	AdminPath string `json:"admin_path" yaml:"admin_path"`
	// RequestTimeout bounds each admin call; zero means no timeout.
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	Roles []string `json:"roles" yaml:"roles"`

	LogLevel  string `json:"log_level" yaml:"log_level"`
	LogFile   string `json:"log_file" yaml:"log_file"`
	LogFormat string `json:"log_format" yaml:"log_format"` // "json" or "console"

	// Metrics
	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsPort    int  `json:"metrics_port" yaml:"metrics_port"`

	// InfluxDB (push)
	InfluxURL      string        `json:"influx_url" yaml:"influx_url"`
	InfluxToken    string        `json:"influx_token" yaml:"influx_token"`
	InfluxOrg      string        `json:"influx_org" yaml:"influx_org"`
	InfluxBucket   string        `json:"influx_bucket" yaml:"influx_bucket"`
	InfluxInterval time.Duration `json:"influx_interval" yaml:"influx_interval"`

	Explore ExploreConfig `json:"explore" yaml:"explore"`
}

// ExploreConfig parameterizes the exploratory sequence.
type ExploreConfig struct {
	From              string `json:"from" yaml:"from"`
	PrivatePingTarget string `json:"private_ping_target" yaml:"private_ping_target"`
	Topic             string `json:"topic" yaml:"topic"`
	Data              string `json:"data" yaml:"data"`
}

// DefaultConfig returns the defaults matching a localnet testbed
func DefaultConfig() *Config {
	return &Config{
		TopologyFile:   "net.json",
		Network:        "localnet_default",
		AdminPort:      9002,
		AdminPath:      "/admin/run_command",
		RequestTimeout: 0,
		Roles:          append([]string(nil), DefaultRoles...),
		LogLevel:       "info",
		LogFormat:      "console",

		MetricsEnabled: false,
		MetricsPort:    9090,
		InfluxInterval: 1 * time.Minute,

		Explore: ExploreConfig{
			From:              "access_1_1",
			PrivatePingTarget: "collection_1_1",
			Topic:             "request-collections/1c6559f31afd9b262035d3b684f074fd0ba00dec2779d53be3e08e11880108fd",
			Data:              "0a127075626c69632d707573682d626c6f636b73222000000000000000000000000000000000000000000000000000000000",
		},
	}
}

// Validate returns a list of non-fatal configuration warnings.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{!c.UseDocker && c.TopologyFile == "", "no topology file configured and docker source disabled"},
		{c.UseDocker && c.Network == "", "docker source enabled but network name is empty"},
		{c.AdminPort <= 0 || c.AdminPort > 65535, fmt.Sprintf("admin port %d out of range", c.AdminPort)},
		{!strings.HasPrefix(c.AdminPath, "/"), fmt.Sprintf("admin path %q should start with '/'", c.AdminPath)},
		{c.RequestTimeout < 0, "negative request timeout is treated as no timeout"},
		{len(c.Roles) == 0, "no roles configured; identity resolution will skip every node"},
		{c.NamePrefixLen < 0, "negative name prefix length is treated as separator stripping"},
		{c.InfluxURL != "" && c.InfluxBucket == "", "influx URL provided but bucket is missing"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	return warnings
}

// LoadConfigFromFile loads config from a YAML/JSON file
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
