package db

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection statistics.
type PoolStats struct {
	Driver       string `json:"driver"`
	OpenConns    int32  `json:"open_conns"`
	IdleConns    int32  `json:"idle_conns"`
	InUseConns   int32  `json:"in_use_conns"`
	MaxConns     int32  `json:"max_conns"`
	WaitCount    int64  `json:"wait_count"`
	WaitDuration string `json:"wait_duration"`
	Healthy      bool   `json:"healthy"`
}

// Checker is a database the health endpoint can ping and report on.
type Checker interface {
	Ping(ctx context.Context) error
	Stats() *PoolStats
}

// SQLChecker reports on a database/sql handle.
type SQLChecker struct {
	DB *sql.DB
}

func (c SQLChecker) Ping(ctx context.Context) error { return c.DB.PingContext(ctx) }

func (c SQLChecker) Stats() *PoolStats {
	s := c.DB.Stats()
	return &PoolStats{
		Driver:       "sqlite",
		OpenConns:    int32(s.OpenConnections),
		IdleConns:    int32(s.Idle),
		InUseConns:   int32(s.InUse),
		MaxConns:     int32(s.MaxOpenConnections),
		WaitCount:    s.WaitCount,
		WaitDuration: s.WaitDuration.String(),
		Healthy:      s.OpenConnections > 0,
	}
}

// PoolChecker reports on a pgx connection pool.
type PoolChecker struct {
	Pool *pgxpool.Pool
}

func (c PoolChecker) Ping(ctx context.Context) error { return c.Pool.Ping(ctx) }

func (c PoolChecker) Stats() *PoolStats {
	stat := c.Pool.Stat()
	return &PoolStats{
		Driver:       "postgres",
		OpenConns:    stat.TotalConns(),
		IdleConns:    stat.IdleConns(),
		InUseConns:   stat.AcquiredConns(),
		MaxConns:     stat.MaxConns(),
		WaitCount:    stat.EmptyAcquireCount(),
		WaitDuration: stat.AcquireDuration().String(),
		Healthy:      stat.TotalConns() > 0,
	}
}

// HealthHandler returns a handler for the database health check endpoint.
func HealthHandler(checker Checker) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		err := checker.Ping(ctx)
		stats := checker.Stats()

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"db":     stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"db":     stats,
		})
	}
}
