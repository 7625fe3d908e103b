package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flowprobe/flowprobe/internal/config"
	"github.com/flowprobe/flowprobe/internal/docker"
	"github.com/flowprobe/flowprobe/internal/logging"
	"github.com/flowprobe/flowprobe/internal/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the command tree and returns the process exit code.
func execute(ctx context.Context, args []string) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// initLogging initializes log subsystem from config and returns a cleanup func
func initLogging(cfg *config.Config) (func(), error) {
	cleanup, err := logging.Init(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cleanup, nil
}

// initMetricsAndInflux starts optional metrics server and Influx pusher. Both
// stop when ctx is cancelled.
func initMetricsAndInflux(ctx context.Context, cfg *config.Config) {
	if cfg.MetricsEnabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.PromHandler())
		mux.Handle("/status", metrics.JSONHandler())
		srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.MetricsPort), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logging.Get().Info().Str("addr", srv.Addr).Msg("starting metrics server")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Get().Warn().Err(err).Msg("metrics server stopped")
			}
		}()
		go func() {
			<-ctx.Done()
			_ = srv.Close()
		}()
	}
	if cfg.InfluxURL != "" {
		go metrics.StartInfluxPusher(ctx, cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.InfluxInterval)
	}
}

// checkDockerSocketAccess verifies the socket exists and is openable for read/write.
// Returns nil if socket is absent (allowed), nil if accessible, or an error indicating
// why it isn't accessible.
func checkDockerSocketAccess(path string) error {
	_, err := os.Stat(path)
	if err == nil {
		f, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return err
		}
		_ = f.Close()
		return nil
	}
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ensureDockerSocketAccessible checks the local socket when no remote host is
// configured. Permission problems are fatal, anything else only warns.
func ensureDockerSocketAccessible(host string) error {
	path := docker.DefaultSocketPath
	if host != "" {
		if !strings.HasPrefix(host, "unix://") {
			return nil
		}
		path = strings.TrimPrefix(host, "unix://")
	}
	if err := checkDockerSocketAccess(path); err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("permission denied accessing %s: ensure the user is in the docker group", path)
		}
		logging.Get().Warn().Err(err).Str("socket", path).Msg("problem accessing docker socket; continuing but inspection may fail")
	}
	return nil
}
