package pool

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/pkg/credential"
)

var (
	// ErrPoolNotFound is returned when refreshing a pool the manager does not know.
	ErrPoolNotFound = errors.New("connection pool not found")

	// ErrPoolExists is returned when adding a second pool with the same name.
	ErrPoolExists = errors.New("connection pool already exists")

	// ErrPoolClosed is returned when changing or refreshing a closed pool.
	ErrPoolClosed = errors.New("connection pool is closed")
)

// Settings are the mutable credential settings of a refreshable pool. They
// only take effect on the next refresh.
type Settings struct {
	mu       sync.Mutex
	username string
	password string
	closed   bool
}

// NewSettings returns settings holding initial.
func NewSettings(initial credential.Pair) *Settings {
	return &Settings{username: initial.Username, password: initial.Password}
}

// SetCredentials replaces both fields under the settings lock.
func (s *Settings) SetCredentials(username, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrPoolClosed
	}
	s.username = username
	s.password = password
	return nil
}

// Snapshot returns both fields as one pair.
func (s *Settings) Snapshot() credential.Pair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return credential.NewPair(s.username, s.password)
}

func (s *Settings) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// RefreshablePool is a named pool whose credentials are pool settings. A
// refresh replaces the *sql.DB with one built from the current settings;
// callers must fetch DB() per unit of work rather than keeping it.
type RefreshablePool struct {
	name     string
	dialect  Dialect
	factory  ConnectorFunc
	tune     Tuning
	settings *Settings
	logger   *logging.Logger

	mu        sync.Mutex
	closed    bool
	db        atomic.Pointer[sql.DB]
	refreshes atomic.Uint64
}

// NewRefreshablePool opens a pool for url using initial as its credentials.
func NewRefreshablePool(name string, dialect Dialect, url string, initial credential.Pair, tune Tuning, opts ...Option) (*RefreshablePool, error) {
	o := buildOptions(opts)

	factory, err := dialect.Prepare(url)
	if err != nil {
		return nil, fmt.Errorf("pool %s: %w", name, err)
	}

	p := &RefreshablePool{
		name:     name,
		dialect:  dialect,
		factory:  factory,
		tune:     tune,
		settings: NewSettings(initial),
		logger:   o.logger,
	}

	db, err := p.open(initial)
	if err != nil {
		return nil, err
	}
	p.db.Store(db)

	o.logger.Debug("Opened refreshable pool %s (%s)", name, dialect.Name())
	return p, nil
}

func (p *RefreshablePool) open(creds credential.Pair) (*sql.DB, error) {
	connector, err := p.factory(creds)
	if err != nil {
		return nil, fmt.Errorf("pool %s: build connector: %w", p.name, err)
	}
	db := sql.OpenDB(connector)
	p.tune.apply(db)
	return db, nil
}

// Name returns the pool name.
func (p *RefreshablePool) Name() string { return p.name }

// Settings returns the pool's credential settings.
func (p *RefreshablePool) Settings() *Settings { return p.settings }

// DB returns the current *sql.DB.
func (p *RefreshablePool) DB() *sql.DB { return p.db.Load() }

// Refreshes returns how many times the pool was refreshed.
func (p *RefreshablePool) Refreshes() uint64 { return p.refreshes.Load() }

// PingContext verifies a connection from the current DB is alive.
func (p *RefreshablePool) PingContext(ctx context.Context) error {
	return p.DB().PingContext(ctx)
}

// Stats returns statistics of the current DB.
func (p *RefreshablePool) Stats() sql.DBStats {
	return p.DB().Stats()
}

// refresh swaps in a DB built from the current settings and hands the
// previous one to retire, which closes it without blocking the caller.
func (p *RefreshablePool) refresh(retire func(*sql.DB)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	creds := p.settings.Snapshot()
	db, err := p.open(creds)
	if err != nil {
		return err
	}

	old := p.db.Swap(db)
	n := p.refreshes.Add(1)
	p.logger.Info("Refreshed pool %s for user %s (refresh %d)", p.name, creds.Username, n)

	retire(old)
	return nil
}

// Close closes the current DB. Further refreshes and settings changes fail
// with ErrPoolClosed.
func (p *RefreshablePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.settings.close()
	return p.db.Load().Close()
}

// Manager owns refreshable pools by name and refreshes them on request.
type Manager struct {
	logger *logging.Logger

	mu    sync.RWMutex
	pools map[string]*RefreshablePool

	retiring sync.WaitGroup
}

// NewManager returns an empty manager.
func NewManager(opts ...Option) *Manager {
	o := buildOptions(opts)
	return &Manager{
		logger: o.logger,
		pools:  make(map[string]*RefreshablePool),
	}
}

// Add registers p under its name.
func (m *Manager) Add(p *RefreshablePool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.pools[p.Name()]; ok {
		return fmt.Errorf("pool %s: %w", p.Name(), ErrPoolExists)
	}
	m.pools[p.Name()] = p
	return nil
}

// Get returns the pool registered under name.
func (m *Manager) Get(name string) (*RefreshablePool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[name]
	return p, ok
}

// Names returns the registered pool names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.pools))
	for name := range m.pools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RefreshConnectionPool rebuilds the named pool from its current settings.
// The previous DB is closed in the background once its in-flight work ends.
func (m *Manager) RefreshConnectionPool(name string) error {
	p, ok := m.Get(name)
	if !ok {
		return fmt.Errorf("pool %s: %w", name, ErrPoolNotFound)
	}

	return p.refresh(func(old *sql.DB) {
		m.retiring.Add(1)
		go func() {
			defer m.retiring.Done()
			if err := old.Close(); err != nil {
				m.logger.Warn("Failed to close retired connections of pool %s: %v", name, err)
			}
		}()
	})
}

// Wait blocks until every retired DB has been closed.
func (m *Manager) Wait() {
	m.retiring.Wait()
}

// Close closes every pool and waits for retired DBs to be closed.
func (m *Manager) Close() error {
	m.mu.RLock()
	pools := make([]*RefreshablePool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.mu.RUnlock()

	var errs []error
	for _, p := range pools {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pool %s: %w", p.Name(), err))
		}
	}
	m.retiring.Wait()
	return errors.Join(errs...)
}

// Refresher refreshes a pool by name.
type Refresher interface {
	RefreshConnectionPool(name string) error
}

// RefreshAdapter is the push-style adapter: it writes the new pair into a
// pool's settings and asks the refresher to rebuild the pool.
type RefreshAdapter struct {
	name      string
	settings  *Settings
	refresher Refresher
}

var _ credential.Updatable = (*RefreshAdapter)(nil)

// NewRefreshAdapter returns an adapter for the pool called name.
func NewRefreshAdapter(name string, settings *Settings, refresher Refresher) *RefreshAdapter {
	return &RefreshAdapter{name: name, settings: settings, refresher: refresher}
}

// Name returns the pool name.
func (a *RefreshAdapter) Name() string { return a.name }

// Update applies the pair and refreshes the pool. The settings lock is
// released before the refresh starts. Failures are not retried.
func (a *RefreshAdapter) Update(username, password string) error {
	if err := a.settings.SetCredentials(username, password); err != nil {
		return &credential.RotationFailedError{Pool: a.name, Op: credential.OpSetCredentials, Err: err}
	}
	if err := a.refresher.RefreshConnectionPool(a.name); err != nil {
		return &credential.RotationFailedError{Pool: a.name, Op: credential.OpRefresh, Err: err}
	}
	return nil
}
