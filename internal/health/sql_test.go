package health

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePinger lets tests control pool statistics.
type fakePinger struct {
	pingErr error
	stats   sql.DBStats
}

func (f *fakePinger) PingContext(context.Context) error { return f.pingErr }
func (f *fakePinger) Stats() sql.DBStats                 { return f.stats }

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func TestSQLCheckerHealthy(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing()

	checker := NewSQLChecker("primary", db, DefaultSQLConfig())
	result := checker.Check(context.Background())

	assert.True(t, result.Healthy)
	assert.Equal(t, StatusHealthy, result.Status)
	assert.Equal(t, "all checks passed", result.Message)
	assert.Contains(t, result.Metadata, "ping_latency_ms")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCheckerPingFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectPing().WillReturnError(errors.New(`pq: password authentication failed for user "svc"`))

	checker := NewSQLChecker("primary", db, DefaultSQLConfig())
	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Contains(t, result.Message, "ping failed")
	assert.Contains(t, result.Message, "password authentication failed")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLCheckerPoolUsage(t *testing.T) {
	tests := []struct {
		name       string
		stats      sql.DBStats
		healthy    bool
		status     Status
		poolStatus string
	}{
		{
			name:       "healthy",
			stats:      sql.DBStats{MaxOpenConnections: 10, OpenConnections: 3, InUse: 2},
			healthy:    true,
			status:     StatusHealthy,
			poolStatus: "healthy",
		},
		{
			name:       "degraded",
			stats:      sql.DBStats{MaxOpenConnections: 10, OpenConnections: 9, InUse: 8},
			healthy:    true,
			status:     StatusDegraded,
			poolStatus: "degraded",
		},
		{
			name:       "exhausted",
			stats:      sql.DBStats{MaxOpenConnections: 10, OpenConnections: 10, InUse: 10},
			healthy:    false,
			status:     StatusUnhealthy,
			poolStatus: "exhausted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewSQLChecker("primary", &fakePinger{stats: tt.stats}, DefaultSQLConfig())
			result := checker.Check(context.Background())

			assert.Equal(t, tt.healthy, result.Healthy)
			assert.Equal(t, tt.status, result.Status)
			assert.Equal(t, tt.poolStatus, result.Metadata["pool_status"])
			assert.Equal(t, tt.stats.OpenConnections, result.OpenConnections)
		})
	}
}

func TestSQLCheckerUnlimitedPool(t *testing.T) {
	checker := NewSQLChecker("primary", &fakePinger{stats: sql.DBStats{OpenConnections: 50, InUse: 50}}, DefaultSQLConfig())
	result := checker.Check(context.Background())

	assert.True(t, result.Healthy)
	assert.NotContains(t, result.Metadata, "pool_status")
}

func TestSQLCheckerWithoutDB(t *testing.T) {
	checker := NewSQLChecker("primary", nil, DefaultSQLConfig())
	result := checker.Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Equal(t, "no database connection configured", result.Message)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "unknown", StatusUnknown.String())
	assert.Equal(t, "healthy", StatusHealthy.String())
	assert.Equal(t, "degraded", StatusDegraded.String())
	assert.Equal(t, "unhealthy", StatusUnhealthy.String())
}
