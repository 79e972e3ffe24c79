package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// Pinger is any dependency the health endpoint should check besides Postgres.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a plain function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// HealthHandler reports pool statistics and pings every named dependency.
// A failing cache degrades the report but does not fail the check, since
// snapshots fall back to Postgres.
func HealthHandler(pool *pgxpool.Pool, deps map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		checks := CheckDependencies(ctx, deps)

		err := pool.Ping(ctx)
		stats := GetPoolStats(pool)
		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status":       "unhealthy",
				"error":        err.Error(),
				"pool":         stats,
				"dependencies": checks,
			})
		}

		status := "healthy"
		for _, v := range checks {
			if v != "ok" {
				status = "degraded"
			}
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":       status,
			"pool":         stats,
			"dependencies": checks,
		})
	}
}

// CheckDependencies pings each dependency and returns "ok" or the error text.
func CheckDependencies(ctx context.Context, deps map[string]Pinger) map[string]string {
	out := make(map[string]string, len(deps))
	for name, p := range deps {
		if err := p.Ping(ctx); err != nil {
			out[name] = err.Error()
			continue
		}
		out[name] = "ok"
	}
	return out
}
