package health

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type poolObservation struct {
	healthy bool
	open    int
}

type fakePoolRecorder struct {
	mu           sync.Mutex
	observations map[string][]poolObservation
}

func newFakePoolRecorder() *fakePoolRecorder {
	return &fakePoolRecorder{observations: map[string][]poolObservation{}}
}

func (r *fakePoolRecorder) ObservePool(pool string, healthy bool, open int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations[pool] = append(r.observations[pool], poolObservation{healthy: healthy, open: open})
}

func (r *fakePoolRecorder) count(pool string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.observations[pool])
}

func TestProbeOnceRecordsEveryPool(t *testing.T) {
	recorder := newFakePoolRecorder()
	p := NewProber(DefaultProberConfig(), clockwork.NewFakeClock(), recorder, nil)
	p.Register(NewSQLChecker("primary", &fakePinger{stats: sql.DBStats{OpenConnections: 2}}, DefaultSQLConfig()))
	p.Register(NewSQLChecker("demo-pool", &fakePinger{pingErr: errors.New("connection refused")}, DefaultSQLConfig()))

	assert.Equal(t, StatusUnknown, p.GetStatus("primary"))

	p.ProbeOnce(context.Background())

	assert.Equal(t, StatusHealthy, p.GetStatus("primary"))
	assert.Equal(t, StatusUnhealthy, p.GetStatus("demo-pool"))
	assert.Equal(t, []poolObservation{{healthy: true, open: 2}}, recorder.observations["primary"])
	assert.Equal(t, []poolObservation{{healthy: false, open: 0}}, recorder.observations["demo-pool"])

	result, ok := p.Result("demo-pool")
	require.True(t, ok)
	assert.Contains(t, result.Message, "connection refused")
}

func TestProberRunUsesInterval(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := clockwork.NewFakeClock()
	recorder := newFakePoolRecorder()
	p := NewProber(ProberConfig{Interval: time.Minute, Timeout: time.Second}, clock, recorder, nil)
	p.Register(NewSQLChecker("primary", &fakePinger{}, DefaultSQLConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	clock.BlockUntil(1)
	assert.Equal(t, 1, recorder.count("primary"))

	clock.Advance(time.Minute)
	clock.BlockUntil(1)
	assert.Equal(t, 2, recorder.count("primary"))

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestNewProberDefaults(t *testing.T) {
	p := NewProber(ProberConfig{}, nil, nil, nil)
	assert.Equal(t, DefaultProberConfig(), p.config)

	// no recorder attached
	p.Register(NewSQLChecker("primary", &fakePinger{}, DefaultSQLConfig()))
	p.ProbeOnce(context.Background())
	assert.Equal(t, StatusHealthy, p.GetStatus("primary"))
}
