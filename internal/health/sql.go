package health

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
)

// SQLConfig holds configuration for SQL health checks.
type SQLConfig struct {
	// PingEnabled enables basic ping check.
	PingEnabled bool

	// ConnectionPoolEnabled enables connection pool monitoring.
	ConnectionPoolEnabled bool

	// ConnectionPoolWarnPct is the percentage threshold for connection pool warning.
	ConnectionPoolWarnPct int
}

// DefaultSQLConfig returns the default SQL health configuration.
func DefaultSQLConfig() SQLConfig {
	return SQLConfig{
		PingEnabled:           true,
		ConnectionPoolEnabled: true,
		ConnectionPoolWarnPct: 80,
	}
}

// SQLPinger is the interface for pinging a database. *sql.DB and both pool
// types implement it.
type SQLPinger interface {
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
}

// SQLChecker performs health checks on a SQL connection pool.
type SQLChecker struct {
	name   string
	config SQLConfig
	db     SQLPinger
	clock  clockwork.Clock
}

// NewSQLChecker creates a new SQL health checker for db.
func NewSQLChecker(name string, db SQLPinger, config SQLConfig) *SQLChecker {
	return &SQLChecker{
		name:   name,
		config: config,
		db:     db,
		clock:  clockwork.NewRealClock(),
	}
}

// Name returns the pool name.
func (c *SQLChecker) Name() string {
	return c.name
}

// Check performs a health check on the pool. A failed ping through a
// rotating pool is the first sign that credentials were not picked up.
func (c *SQLChecker) Check(ctx context.Context) Result {
	start := c.clock.Now()
	result := Result{
		Healthy:   true,
		Status:    StatusHealthy,
		Timestamp: start,
		Metadata:  make(map[string]interface{}),
	}

	if c.db == nil {
		result.Healthy = false
		result.Status = StatusUnhealthy
		result.Message = "no database connection configured"
		result.Duration = c.clock.Since(start)
		return result
	}

	var messages []string

	if c.config.PingEnabled {
		pingStart := c.clock.Now()
		if err := c.db.PingContext(ctx); err != nil {
			result.Healthy = false
			result.Status = StatusUnhealthy
			messages = append(messages, fmt.Sprintf("ping failed: %v", err))
		} else {
			result.Metadata["ping_latency_ms"] = c.clock.Since(pingStart).Milliseconds()
		}
	}

	stats := c.db.Stats()
	result.OpenConnections = stats.OpenConnections

	if c.config.ConnectionPoolEnabled {
		result.Metadata["open_connections"] = stats.OpenConnections
		result.Metadata["in_use_connections"] = stats.InUse
		result.Metadata["max_open_connections"] = stats.MaxOpenConnections

		if maxConns := stats.MaxOpenConnections; maxConns > 0 {
			usagePct := (stats.InUse * 100) / maxConns
			result.Metadata["pool_usage_pct"] = usagePct

			switch {
			case stats.InUse >= maxConns:
				result.Healthy = false
				result.Status = StatusUnhealthy
				result.Metadata["pool_status"] = "exhausted"
				messages = append(messages, fmt.Sprintf("connection pool exhausted: %d/%d", stats.InUse, maxConns))
			case usagePct >= c.config.ConnectionPoolWarnPct:
				// Degraded but not unhealthy
				if result.Status == StatusHealthy {
					result.Status = StatusDegraded
				}
				result.Metadata["pool_status"] = "degraded"
				messages = append(messages, fmt.Sprintf("connection pool at %d%% usage", usagePct))
			default:
				result.Metadata["pool_status"] = "healthy"
			}
		}
	}

	result.Duration = c.clock.Since(start)

	if len(messages) > 0 {
		result.Message = strings.Join(messages, "; ")
	} else {
		result.Message = "all checks passed"
	}

	return result
}
