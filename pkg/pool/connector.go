package pool

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync/atomic"

	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/pkg/credential"
)

// Connector is a driver.Connector that pulls credentials from a provider for
// every new physical connection and supports soft eviction.
//
// Every connection is stamped with the connector's generation at the time it
// was opened. SoftEvictConnections bumps the generation; stale connections
// keep serving whoever holds them and are closed by database/sql the next time
// they are returned to the pool or checked out from the idle list.
type Connector struct {
	name       string
	dialect    Dialect
	factory    ConnectorFunc
	provider   credential.Provider
	logger     *logging.Logger
	generation atomic.Uint64
}

// NewConnector returns a connector for url that takes credentials from
// provider.
func NewConnector(name string, dialect Dialect, url string, provider credential.Provider, logger *logging.Logger) (*Connector, error) {
	factory, err := dialect.Prepare(url)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Connector{
		name:     name,
		dialect:  dialect,
		factory:  factory,
		provider: provider,
		logger:   logger,
	}, nil
}

// Connect implements driver.Connector.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	// Load the generation before pulling credentials: a connection opened
	// across an eviction is stamped old and retired, never the reverse.
	gen := c.generation.Load()
	creds := c.provider.Credentials()

	base, err := c.factory(creds)
	if err != nil {
		return nil, fmt.Errorf("pool %s: build connector: %w", c.name, err)
	}

	conn, err := base.Connect(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Opened connection for pool %s as user %s (generation %d)", c.name, creds.Username, gen)
	return &stampedConn{Conn: conn, owner: c, generation: gen}, nil
}

// Driver implements driver.Connector.
func (c *Connector) Driver() driver.Driver {
	return c.dialect.Driver()
}

// SoftEvictConnections marks every existing connection as stale. It returns
// immediately and never closes a connection that is in use.
func (c *Connector) SoftEvictConnections() {
	gen := c.generation.Add(1)
	c.logger.Debug("Soft evicting connections of pool %s (generation %d)", c.name, gen)
}

// Generation returns the current generation.
func (c *Connector) Generation() uint64 {
	return c.generation.Load()
}

// stampedConn wraps a driver connection with the generation it was opened in.
// It implements every optional interface database/sql looks for and falls
// back the same way database/sql would when the wrapped conn does not.
type stampedConn struct {
	driver.Conn
	owner      *Connector
	generation uint64
}

var (
	_ driver.Conn               = (*stampedConn)(nil)
	_ driver.ConnBeginTx        = (*stampedConn)(nil)
	_ driver.ConnPrepareContext = (*stampedConn)(nil)
	_ driver.ExecerContext      = (*stampedConn)(nil)
	_ driver.QueryerContext     = (*stampedConn)(nil)
	_ driver.Pinger             = (*stampedConn)(nil)
	_ driver.SessionResetter    = (*stampedConn)(nil)
	_ driver.Validator          = (*stampedConn)(nil)
	_ driver.NamedValueChecker  = (*stampedConn)(nil)
)

func (c *stampedConn) stale() bool {
	return c.generation < c.owner.generation.Load()
}

// IsValid is called by database/sql before a connection goes back to the
// idle list.
func (c *stampedConn) IsValid() bool {
	if c.stale() {
		return false
	}
	if v, ok := c.Conn.(driver.Validator); ok {
		return v.IsValid()
	}
	return true
}

// ResetSession is called by database/sql before an idle connection is reused.
func (c *stampedConn) ResetSession(ctx context.Context) error {
	if c.stale() {
		return driver.ErrBadConn
	}
	if r, ok := c.Conn.(driver.SessionResetter); ok {
		return r.ResetSession(ctx)
	}
	return nil
}

func (c *stampedConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	if p, ok := c.Conn.(driver.ConnPrepareContext); ok {
		return p.PrepareContext(ctx, query)
	}
	stmt, err := c.Conn.Prepare(query)
	if err != nil {
		return nil, err
	}
	select {
	case <-ctx.Done():
		_ = stmt.Close()
		return nil, ctx.Err()
	default:
		return stmt, nil
	}
}

func (c *stampedConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if b, ok := c.Conn.(driver.ConnBeginTx); ok {
		return b.BeginTx(ctx, opts)
	}
	if opts.ReadOnly || opts.Isolation != 0 {
		return nil, fmt.Errorf("pool %s: driver does not support non-default transaction options", c.owner.name)
	}
	//nolint:staticcheck // fallback for drivers without BeginTx
	return c.Conn.Begin()
}

func (c *stampedConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if e, ok := c.Conn.(driver.ExecerContext); ok {
		return e.ExecContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *stampedConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if q, ok := c.Conn.(driver.QueryerContext); ok {
		return q.QueryContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (c *stampedConn) Ping(ctx context.Context) error {
	if p, ok := c.Conn.(driver.Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (c *stampedConn) CheckNamedValue(nv *driver.NamedValue) error {
	if n, ok := c.Conn.(driver.NamedValueChecker); ok {
		return n.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}
