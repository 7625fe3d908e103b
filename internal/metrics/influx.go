package metrics

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/flowprobe/flowprobe/internal/logging"
)

// StartInfluxPusher starts a background loop to push metrics to InfluxDB
func StartInfluxPusher(ctx context.Context, baseURL, token, org, bucket string, interval time.Duration) {
	if baseURL == "" || bucket == "" || interval <= 0 {
		return
	}
	logging.Get().Info().Str("url", baseURL).Dur("interval", interval).Msg("starting influxdb pusher")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: 5 * time.Second}
	writeURL := influxWriteURL(baseURL, org, bucket)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pushToInflux(ctx, client, writeURL, token)
		}
	}
}

func influxWriteURL(baseURL, org, bucket string) string {
	q := url.Values{}
	q.Set("org", org)
	q.Set("bucket", bucket)
	q.Set("precision", "s")
	return fmt.Sprintf("%s/api/v2/write?%s", strings.TrimRight(baseURL, "/"), q.Encode())
}

// lineProtocol renders a snapshot as one Influx line:
// measurement field=value,... timestamp
func lineProtocol(s StatsSnapshot, now time.Time) string {
	return fmt.Sprintf(
		"flowprobe admin_calls=%di,admin_calls_failed=%di,identities_resolved=%di,nodes_skipped=%di,last_run=%di %d",
		s.AdminCalls, s.AdminCallsFailed, s.IdentitiesResolved, s.NodesSkipped, s.LastRun, now.Unix(),
	)
}

func pushToInflux(ctx context.Context, client *http.Client, writeURL, token string) {
	body := lineProtocol(GetSnapshot(), time.Now())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, writeURL, bytes.NewReader([]byte(body)))
	if err != nil {
		logging.Get().Error().Err(err).Msg("influxdb request creation failed")
		return
	}
	req.Header.Set("Authorization", "Token "+token)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := client.Do(req)
	if err != nil {
		logging.Get().Error().Err(err).Msg("influxdb push failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		logging.Get().Warn().Int("status", resp.StatusCode).Msg("influxdb rejected metrics")
	}
}
