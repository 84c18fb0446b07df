package pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/pkg/credential"
)

func TestSoftEvictionRetiresStaleConnections(t *testing.T) {
	ctx := context.Background()
	d := newFakeDialect()
	adapter := NewEvictAdapter("primary", credential.NewPair("svc", "p1"))

	p, err := OpenEvicting("primary", d, "fake://db/app", adapter, Tuning{MaxOpen: 4, MaxIdle: 4})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	adapter.Bind(p)

	inUse, err := p.DB().Conn(ctx)
	require.NoError(t, err)
	idle, err := p.DB().Conn(ctx)
	require.NoError(t, err)
	require.NoError(t, idle.PingContext(ctx))
	require.NoError(t, idle.Close())
	require.Equal(t, 2, d.Opened())
	assert.Equal(t, credential.NewPair("svc", "p1"), d.Conn(0).creds)

	require.NoError(t, adapter.Update("svc", "p2"))
	assert.Equal(t, uint64(1), p.Generation())

	// a borrowed connection is never interrupted
	require.NoError(t, inUse.PingContext(ctx))
	assert.False(t, d.Conn(0).Closed())

	// the idle connection is retired on checkout and replaced
	fresh, err := p.DB().Conn(ctx)
	require.NoError(t, err)
	require.NoError(t, fresh.PingContext(ctx))
	assert.True(t, d.Conn(1).Closed())
	require.Equal(t, 3, d.Opened())
	assert.Equal(t, credential.NewPair("svc", "p2"), d.Conn(2).creds)

	// the borrowed connection is retired when returned
	require.NoError(t, inUse.Close())
	assert.True(t, d.Conn(0).Closed())

	require.NoError(t, fresh.Close())
	assert.False(t, d.Conn(2).Closed())
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestConnectionsOpenedAfterEvictionSurvive(t *testing.T) {
	ctx := context.Background()
	d := newFakeDialect()
	adapter := NewEvictAdapter("primary", credential.NewPair("svc", "p1"))

	p, err := OpenEvicting("primary", d, "fake://db/app", adapter, Tuning{MaxIdle: 2})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	adapter.Bind(p)

	require.NoError(t, adapter.Update("svc", "p2"))

	for i := 0; i < 3; i++ {
		_, err := p.DB().ExecContext(ctx, "SELECT 1")
		require.NoError(t, err)
	}

	assert.Equal(t, 1, d.Opened())
	assert.Equal(t, credential.NewPair("svc", "p2"), d.Conn(0).creds)
	assert.False(t, d.Conn(0).Closed())
}

func TestEvictionWithoutConnectionsIsNoop(t *testing.T) {
	d := newFakeDialect()
	adapter := NewEvictAdapter("primary", credential.NewPair("svc", "p1"))
	p, err := OpenEvicting("primary", d, "fake://db/app", adapter, Tuning{})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()
	adapter.Bind(p)

	require.NoError(t, adapter.Update("svc", "p2"))
	assert.Zero(t, d.Opened())
}

func TestOpenEvictingRejectsBadURL(t *testing.T) {
	d := newFakeDialect()
	d.prepareErr = errors.New("bad url")

	_, err := OpenEvicting("primary", d, "::", credential.Static(credential.Pair{}), Tuning{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pool primary")
	assert.Contains(t, err.Error(), "bad url")
}

func TestStampedConnFallbacks(t *testing.T) {
	ctx := context.Background()
	owner := &Connector{name: "primary", logger: logging.NewNop()}
	c := &stampedConn{Conn: bareConn{}, owner: owner}

	_, err := c.ExecContext(ctx, "SELECT 1", nil)
	assert.ErrorIs(t, err, driver.ErrSkip)

	_, err = c.QueryContext(ctx, "SELECT 1", nil)
	assert.ErrorIs(t, err, driver.ErrSkip)

	assert.ErrorIs(t, c.CheckNamedValue(&driver.NamedValue{Value: 1}), driver.ErrSkip)
	assert.NoError(t, c.Ping(ctx))
	assert.NoError(t, c.ResetSession(ctx))
	assert.True(t, c.IsValid())

	tx, err := c.BeginTx(ctx, driver.TxOptions{})
	require.NoError(t, err)
	assert.NotNil(t, tx)

	_, err = c.BeginTx(ctx, driver.TxOptions{ReadOnly: true})
	assert.Error(t, err)

	_, err = c.PrepareContext(ctx, "SELECT 1")
	assert.Error(t, err)

	owner.SoftEvictConnections()
	assert.False(t, c.IsValid())
	assert.ErrorIs(t, c.ResetSession(ctx), driver.ErrBadConn)
}

func TestStampedConnDelegates(t *testing.T) {
	ctx := context.Background()
	inner := &fakeConn{}
	c := &stampedConn{Conn: inner, owner: &Connector{name: "primary", logger: logging.NewNop()}}

	res, err := c.ExecContext(ctx, "UPDATE t SET x = 1", nil)
	require.NoError(t, err)
	n, err := res.RowsAffected()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	require.NoError(t, inner.Close())
	assert.ErrorIs(t, c.Ping(ctx), driver.ErrBadConn)
}

func TestNegativeMaxIdleKeepsNoIdleConnections(t *testing.T) {
	ctx := context.Background()
	d := newFakeDialect()

	p, err := OpenEvicting("primary", d, "fake://db/app", credential.Static(credential.NewPair("svc", "p1")), Tuning{MaxIdle: -1})
	require.NoError(t, err)
	defer func() { _ = p.Close() }()

	_, err = p.DB().ExecContext(ctx, "SELECT 1")
	require.NoError(t, err)

	assert.Equal(t, 0, p.Stats().Idle)
	assert.True(t, d.Conn(0).Closed())
}
