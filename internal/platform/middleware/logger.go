package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger emits one access line per request and attaches a request-scoped
// logger to the request context for zerolog.Ctx.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			scoped := logger.With().Str("request_id", rid).Logger()
			c.SetRequest(req.WithContext(scoped.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				// Let echo write the response so the logged status is final.
				c.Error(err)
			}

			status := c.Response().Status
			evt := scoped.Info()
			switch {
			case status >= 500:
				evt = scoped.Error().Err(err)
			case status >= 400:
				evt = scoped.Warn()
			}

			tenant, _ := c.Get("tenant_id").(string)
			evt.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("route", c.Path()).
				Str("tenant", tenant).
				Int("status", status).
				Int64("bytes_out", c.Response().Size).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}
