package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/yarcoin/marketplace/services/metrics"
)

// metricsMiddleware records every request by route pattern, never by raw path.
func metricsMiddleware(m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			m.RequestStarted()
			start := time.Now()

			// write the response now so that its status is known
			if err := next(ctx); err != nil && !ctx.Response().Committed {
				ctx.Error(err)
			}

			m.RequestDone(ctx.Request().Method, ctx.Path(), ctx.Response().Status, time.Since(start))
			return nil
		}
	}
}
