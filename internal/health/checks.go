package health

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/vyrodovalexey/avabff/internal/observability/sink"
)

// HTTPCheck probes url with GET. A failing dependency degrades readiness
// unless critical is set.
func HTTPCheck(client *http.Client, url string, critical bool) CheckFunc {
	if client == nil {
		client = http.DefaultClient
	}
	failed := StatusDegraded
	if critical {
		failed = StatusUnhealthy
	}

	return func(ctx context.Context) Check {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
		if err != nil {
			return Check{Status: failed, Message: "invalid probe URL"}
		}

		resp, err := client.Do(req)
		if err != nil {
			return Check{Status: failed, Message: "unreachable"}
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return Check{Status: failed, Message: fmt.Sprintf("status %d", resp.StatusCode)}
		}
		return Check{Status: StatusHealthy}
	}
}

// SinkCheck reports the log sink state. A sink that cannot push is
// degraded, never unhealthy: request handling does not depend on it.
func SinkCheck(s *sink.Sink) CheckFunc {
	return func(context.Context) Check {
		if s == nil {
			return Check{Status: StatusDegraded, Message: "log sink disabled"}
		}

		stats := s.Stats()
		msg := fmt.Sprintf("queued %d, sent %d, dropped %d", stats.QueueLength, stats.Sent, stats.Dropped)
		if !stats.Healthy {
			return Check{Status: StatusDegraded, Message: msg}
		}
		return Check{Status: StatusHealthy, Message: msg}
	}
}
