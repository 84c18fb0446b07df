// Package pool integrates database/sql connection pools with credential
// rotation.
//
// Two integration styles are provided. An EvictingPool pulls credentials from
// a provider whenever it opens a physical connection; after a rotation the
// EvictAdapter soft-evicts it so connections opened with the old pair are
// retired as they become idle. A RefreshablePool holds credentials as pool
// settings; after a rotation the RefreshAdapter writes the new pair into the
// settings and asks the Manager to refresh the pool, replacing its *sql.DB.
//
// Dialects translate a connection URL and a credential pair into a driver
// connector. PostgreSQL (lib/pq) and MySQL (go-sql-driver/mysql) are
// registered by default.
package pool

import (
	"context"
	"database/sql"
	"time"

	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/pkg/credential"
)

// Tuning holds the database/sql pool limits. Zero values keep the
// database/sql defaults; a negative MaxIdle keeps no idle connections.
type Tuning struct {
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func (t Tuning) apply(db *sql.DB) {
	if t.MaxOpen > 0 {
		db.SetMaxOpenConns(t.MaxOpen)
	}
	if t.MaxIdle != 0 {
		db.SetMaxIdleConns(t.MaxIdle)
	}
	if t.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(t.ConnMaxLifetime)
	}
	if t.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(t.ConnMaxIdleTime)
	}
}

type options struct {
	logger *logging.Logger
}

// Option configures pools and the manager.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: logging.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// EvictingPool is a *sql.DB backed by an evicting Connector.
type EvictingPool struct {
	name      string
	db        *sql.DB
	connector *Connector
}

// OpenEvicting opens a pool for url whose connections take their credentials
// from provider. No connection is made until the pool is first used.
func OpenEvicting(name string, dialect Dialect, url string, provider credential.Provider, tune Tuning, opts ...Option) (*EvictingPool, error) {
	o := buildOptions(opts)

	connector, err := NewConnector(name, dialect, url, provider, o.logger)
	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(connector)
	tune.apply(db)

	o.logger.Debug("Opened evicting pool %s (%s)", name, dialect.Name())
	return &EvictingPool{name: name, db: db, connector: connector}, nil
}

// Name returns the pool name.
func (p *EvictingPool) Name() string { return p.name }

// DB returns the underlying *sql.DB. It stays the same for the pool's
// lifetime.
func (p *EvictingPool) DB() *sql.DB { return p.db }

// SoftEvictConnections retires every existing connection once it is idle.
func (p *EvictingPool) SoftEvictConnections() {
	p.connector.SoftEvictConnections()
}

// Generation returns how many times the pool was soft evicted.
func (p *EvictingPool) Generation() uint64 {
	return p.connector.Generation()
}

// PingContext verifies a connection to the database is alive.
func (p *EvictingPool) PingContext(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Stats returns database/sql pool statistics.
func (p *EvictingPool) Stats() sql.DBStats {
	return p.db.Stats()
}

// Close closes the pool.
func (p *EvictingPool) Close() error {
	return p.db.Close()
}
