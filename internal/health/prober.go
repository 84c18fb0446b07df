package health

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/systmms/poolrotate/internal/logging"
)

// PoolRecorder receives probe results, typically a metrics recorder.
type PoolRecorder interface {
	ObservePool(pool string, healthy bool, openConnections int)
}

// ProberConfig holds configuration for the prober.
type ProberConfig struct {
	// Interval is how often every pool is checked.
	Interval time.Duration

	// Timeout bounds a single check.
	Timeout time.Duration
}

// DefaultProberConfig returns the default prober configuration.
func DefaultProberConfig() ProberConfig {
	return ProberConfig{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
	}
}

// Prober periodically checks every registered pool and keeps the last result
// per pool.
type Prober struct {
	config   ProberConfig
	clock    clockwork.Clock
	logger   *logging.Logger
	recorder PoolRecorder

	mu       sync.RWMutex
	checkers []Checker
	results  map[string]Result
}

// NewProber creates a prober. recorder and logger may be nil.
func NewProber(config ProberConfig, clock clockwork.Clock, recorder PoolRecorder, logger *logging.Logger) *Prober {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultProberConfig().Interval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultProberConfig().Timeout
	}
	return &Prober{
		config:   config,
		clock:    clock,
		logger:   logger,
		recorder: recorder,
		results:  make(map[string]Result),
	}
}

// Register adds a checker.
func (p *Prober) Register(checker Checker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkers = append(p.checkers, checker)
}

// ProbeOnce checks every pool once.
func (p *Prober) ProbeOnce(ctx context.Context) {
	p.mu.RLock()
	checkers := make([]Checker, len(p.checkers))
	copy(checkers, p.checkers)
	p.mu.RUnlock()

	for _, checker := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, p.config.Timeout)
		result := checker.Check(checkCtx)
		cancel()

		p.mu.Lock()
		previous := p.results[checker.Name()]
		p.results[checker.Name()] = result
		p.mu.Unlock()

		if p.recorder != nil {
			p.recorder.ObservePool(checker.Name(), result.Healthy, result.OpenConnections)
		}

		switch {
		case !result.Healthy:
			p.logger.Warn("Pool %s is %s: %s", checker.Name(), result.Status, result.Message)
		case previous.Status == StatusUnhealthy:
			p.logger.Info("Pool %s recovered: %s", checker.Name(), result.Message)
		default:
			p.logger.Debug("Pool %s is %s (%d open connections)", checker.Name(), result.Status, result.OpenConnections)
		}
	}
}

// Run probes immediately and then every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	for {
		p.ProbeOnce(ctx)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.config.Interval):
		}
	}
}

// GetStatus returns the last status of the named pool.
func (p *Prober) GetStatus(pool string) Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.results[pool].Status
}

// Result returns the last result of the named pool.
func (p *Prober) Result(pool string) (Result, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	r, ok := p.results[pool]
	return r, ok
}
