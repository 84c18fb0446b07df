package pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"

	"github.com/systmms/poolrotate/pkg/credential"
)

// fakeDialect records every connector it builds and every connection opened
// through them.
type fakeDialect struct {
	prepareErr error

	mu        sync.Mutex
	factories []credential.Pair
	conns     []*fakeConn
}

func newFakeDialect() *fakeDialect {
	return &fakeDialect{}
}

func (d *fakeDialect) Name() string { return "fake" }

func (d *fakeDialect) Driver() driver.Driver { return fakeDriver{} }

func (d *fakeDialect) Prepare(string) (ConnectorFunc, error) {
	if d.prepareErr != nil {
		return nil, d.prepareErr
	}
	return func(creds credential.Pair) (driver.Connector, error) {
		d.mu.Lock()
		d.factories = append(d.factories, creds)
		d.mu.Unlock()
		return &fakeConnector{dialect: d, creds: creds}, nil
	}, nil
}

func (d *fakeDialect) Opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.conns)
}

func (d *fakeDialect) Conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialect) Factories() []credential.Pair {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]credential.Pair, len(d.factories))
	copy(out, d.factories)
	return out
}

type fakeConnector struct {
	dialect *fakeDialect
	creds   credential.Pair
}

func (c *fakeConnector) Connect(context.Context) (driver.Conn, error) {
	c.dialect.mu.Lock()
	defer c.dialect.mu.Unlock()
	conn := &fakeConn{creds: c.creds}
	c.dialect.conns = append(c.dialect.conns, conn)
	return conn, nil
}

func (c *fakeConnector) Driver() driver.Driver { return fakeDriver{} }

type fakeDriver struct{}

func (fakeDriver) Open(string) (driver.Conn, error) {
	return nil, errors.New("fake driver only supports connectors")
}

type fakeConn struct {
	creds credential.Pair

	mu     sync.Mutex
	closed bool
}

func (c *fakeConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Begin() (driver.Tx, error) { return fakeTx{}, nil }

func (c *fakeConn) Ping(context.Context) error {
	if c.Closed() {
		return driver.ErrBadConn
	}
	return nil
}

func (c *fakeConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	if c.Closed() {
		return nil, driver.ErrBadConn
	}
	return driver.RowsAffected(1), nil
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeTx struct{}

func (fakeTx) Commit() error   { return nil }
func (fakeTx) Rollback() error { return nil }

// bareConn implements only driver.Conn.
type bareConn struct{}

func (bareConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (bareConn) Close() error                        { return nil }
func (bareConn) Begin() (driver.Tx, error)           { return fakeTx{}, nil }
