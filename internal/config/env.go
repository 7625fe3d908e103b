package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Environment variables supported:
// - FLOWPROBE_TOPOLOGY_FILE (string, e.g. "net.json")
// - FLOWPROBE_USE_DOCKER (bool)
// - FLOWPROBE_NETWORK (string, e.g. "localnet_default")
// - FLOWPROBE_DOCKER_HOST (string, e.g. "unix:///var/run/docker.sock")
// - FLOWPROBE_NAME_PREFIX_LEN (int)
// - FLOWPROBE_ADMIN_PORT (int, e.g. 9002)
// - FLOWPROBE_ADMIN_PATH (string)
// - FLOWPROBE_REQUEST_TIMEOUT (duration, e.g. "5s")
// - FLOWPROBE_ROLES (comma separated)
// - FLOWPROBE_LOG_LEVEL / FLOWPROBE_LOG_FILE / FLOWPROBE_LOG_FORMAT
// - FLOWPROBE_METRICS_ENABLED (bool) / FLOWPROBE_METRICS_PORT (int)
// - FLOWPROBE_INFLUX_URL / _TOKEN / _ORG / _BUCKET / _INTERVAL
// - FLOWPROBE_EXPLORE_FROM / _PRIVATE_PING_TARGET / _TOPIC / _DATA
func ApplyEnvOverrides(cfg *Config) error {
	if err := applyTopologyEnv(cfg); err != nil {
		return err
	}
	if err := applyAdminEnv(cfg); err != nil {
		return err
	}
	applyLoggingEnv(cfg)
	if err := applyMetricsEnv(cfg); err != nil {
		return err
	}
	if err := applyInfluxEnv(cfg); err != nil {
		return err
	}
	applyExploreEnv(cfg)
	return nil
}

func applyTopologyEnv(cfg *Config) error {
	if v := os.Getenv("FLOWPROBE_TOPOLOGY_FILE"); v != "" {
		cfg.TopologyFile = v
	}
	if err := setBoolEnv("FLOWPROBE_USE_DOCKER", func(b bool) { cfg.UseDocker = b }); err != nil {
		return err
	}
	if v := os.Getenv("FLOWPROBE_NETWORK"); v != "" {
		cfg.Network = v
	}
	if v := os.Getenv("FLOWPROBE_DOCKER_HOST"); v != "" {
		cfg.DockerHost = v
	}
	return setIntEnv("FLOWPROBE_NAME_PREFIX_LEN", func(n int) { cfg.NamePrefixLen = n })
}

func applyAdminEnv(cfg *Config) error {
	if err := setIntEnv("FLOWPROBE_ADMIN_PORT", func(n int) { cfg.AdminPort = n }); err != nil {
		return err
	}
	if v := os.Getenv("FLOWPROBE_ADMIN_PATH"); v != "" {
		cfg.AdminPath = v
	}
	if v := os.Getenv("FLOWPROBE_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FLOWPROBE_REQUEST_TIMEOUT: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if v := os.Getenv("FLOWPROBE_ROLES"); v != "" {
		cfg.Roles = splitCSV(v)
	}
	return nil
}

func applyLoggingEnv(cfg *Config) {
	if v := os.Getenv("FLOWPROBE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FLOWPROBE_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("FLOWPROBE_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
}

// applyMetricsEnv consolidates metrics-related env parsing
func applyMetricsEnv(cfg *Config) error {
	if err := setBoolEnv("FLOWPROBE_METRICS_ENABLED", func(b bool) { cfg.MetricsEnabled = b }); err != nil {
		return err
	}
	return setIntEnv("FLOWPROBE_METRICS_PORT", func(n int) { cfg.MetricsPort = n })
}

// applyInfluxEnv consolidates Influx-related env parsing
func applyInfluxEnv(cfg *Config) error {
	if v := os.Getenv("FLOWPROBE_INFLUX_URL"); v != "" {
		cfg.InfluxURL = v
	}
	if v := os.Getenv("FLOWPROBE_INFLUX_TOKEN"); v != "" {
		cfg.InfluxToken = v
	}
	if v := os.Getenv("FLOWPROBE_INFLUX_ORG"); v != "" {
		cfg.InfluxOrg = v
	}
	if v := os.Getenv("FLOWPROBE_INFLUX_BUCKET"); v != "" {
		cfg.InfluxBucket = v
	}
	if v := os.Getenv("FLOWPROBE_INFLUX_INTERVAL"); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FLOWPROBE_INFLUX_INTERVAL: %w", err)
		}
		cfg.InfluxInterval = dur
	}
	return nil
}

func applyExploreEnv(cfg *Config) {
	if v := os.Getenv("FLOWPROBE_EXPLORE_FROM"); v != "" {
		cfg.Explore.From = v
	}
	if v := os.Getenv("FLOWPROBE_EXPLORE_PRIVATE_PING_TARGET"); v != "" {
		cfg.Explore.PrivatePingTarget = v
	}
	if v := os.Getenv("FLOWPROBE_EXPLORE_TOPIC"); v != "" {
		cfg.Explore.Topic = v
	}
	if v := os.Getenv("FLOWPROBE_EXPLORE_DATA"); v != "" {
		cfg.Explore.Data = v
	}
}

// setBoolEnv is a small helper to parse boolean environment variables
func setBoolEnv(env string, setter func(bool)) error {
	if v := os.Getenv(env); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(b)
	}
	return nil
}

func setIntEnv(env string, setter func(int)) error {
	if v := os.Getenv(env); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", env, err)
		}
		setter(n)
	}
	return nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
