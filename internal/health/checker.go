// Package health probes connection pools and reports their status.
package health

import (
	"context"
	"time"
)

// Checker performs a single health check.
type Checker interface {
	// Name returns the name of the checked pool.
	Name() string

	// Check performs a single health check.
	Check(ctx context.Context) Result
}

// Result represents the outcome of a health check.
type Result struct {
	// Healthy indicates whether the health check passed.
	Healthy bool

	// Status refines Healthy with a degraded state.
	Status Status

	// Message provides details about the health check result.
	Message string

	// Duration is how long the health check took.
	Duration time.Duration

	// Timestamp is when the health check was performed.
	Timestamp time.Time

	// OpenConnections is the pool size at check time.
	OpenConnections int

	// Metadata contains additional check-specific data.
	Metadata map[string]interface{}
}

// Status represents the current health status of a pool.
type Status int

const (
	// StatusUnknown indicates health status has not been checked.
	StatusUnknown Status = iota

	// StatusHealthy indicates the pool is healthy.
	StatusHealthy

	// StatusDegraded indicates the pool has some issues but is functional.
	StatusDegraded

	// StatusUnhealthy indicates the pool is not healthy.
	StatusUnhealthy
)

func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}
