package main

import (
	"context"

	"github.com/labstack/echo/v4"
)

const metricsAddr = ":9091"

// startMetricsServer mounts /metrics and serves it in the background
// until ctx is canceled. A bind failure is logged but never fatal —
// metrics are observability, not a dependency of the remediation run.
func startMetricsServer(ctx context.Context, c *collaborators) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	c.metrics.Mount(e)

	go func() {
		if err := e.Start(metricsAddr); err != nil {
			c.logger.Warn(ctx, "metrics server stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		_ = e.Shutdown(context.Background())
	}()
}
