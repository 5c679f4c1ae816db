package monitoring

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/spacesedan/reviewradar/internal/clients"
)

const HEALTHCHECK_TIMER = 15

// MonitorAnalyzerHealth polls the remote analyzer and publishes its
// state; the hybrid classifier skips remote refinement while unhealthy.
func MonitorAnalyzerHealth(ctx context.Context, healthy *atomic.Bool) {
	ticker := time.NewTicker(time.Second * HEALTHCHECK_TIMER)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			isHealthy := clients.GetAnalyzerClient().HealthCheck()
			healthy.Store(isHealthy)
			if !isHealthy {
				slog.Warn("[HealthCheck] Analyzer is unhealthy")
			}
		}
	}
}
