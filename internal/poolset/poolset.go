// Package poolset builds the configured pools and their rotation adapters.
//
// Construction runs in three phases so that adapters and pools can refer to
// each other without a cycle:
//
//  1. adapters are created holding the initial credentials,
//  2. pools are opened (an evicting pool takes its adapter as provider),
//  3. adapters are bound to their pools.
package poolset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/systmms/poolrotate/internal/config"
	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/pkg/credential"
	"github.com/systmms/poolrotate/pkg/pool"
	"github.com/systmms/poolrotate/pkg/secretsource"
)

// Pool is the part of a connection pool the rest of the process needs.
type Pool interface {
	Name() string
	DB() *sql.DB
	PingContext(ctx context.Context) error
	Stats() sql.DBStats
	Close() error
}

// Entry is one configured pool with its adapter. Adapter is nil for direct
// pools, which read the secret files themselves.
type Entry struct {
	Config  config.PoolConfig
	Pool    Pool
	Adapter credential.Updatable
}

// Set owns every pool built from configuration.
type Set struct {
	entries []Entry
	evicted []*pool.EvictingPool
	manager *pool.Manager
	logger  *logging.Logger
}

// Build opens every pool in defs. initial is the pair read at startup; reader
// serves jdbc-url lookups and direct pools.
func Build(defs []config.PoolConfig, reader *secretsource.Reader, initial credential.Pair, logger *logging.Logger) (*Set, error) {
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Set{
		manager: pool.NewManager(pool.WithLogger(logger)),
		logger:  logger,
	}

	// Phase 1
	evictAdapters := make(map[string]*pool.EvictAdapter)
	for _, def := range defs {
		if def.Mode == config.ModeEvict {
			evictAdapters[def.Name] = pool.NewEvictAdapter(def.Name, initial)
		}
	}

	for _, def := range defs {
		entry, err := s.open(def, reader, initial, evictAdapters[def.Name])
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.entries = append(s.entries, entry)
		logger.Info("Configured pool %s (%s, %s mode)", def.Name, def.Driver, def.Mode)
	}

	return s, nil
}

func (s *Set) open(def config.PoolConfig, reader *secretsource.Reader, initial credential.Pair, evictAdapter *pool.EvictAdapter) (Entry, error) {
	dialect, err := pool.LookupDialect(def.Driver)
	if err != nil {
		return Entry{}, fmt.Errorf("pool %s: %w", def.Name, err)
	}

	url := def.URL
	if def.URLFromSecret {
		url, err = reader.ConnectionString()
		if err != nil {
			return Entry{}, fmt.Errorf("pool %s: %w", def.Name, err)
		}
	}

	tune := pool.Tuning{
		MaxOpen:         def.MaxOpen,
		MaxIdle:         idleLimit(def.MaxIdle),
		ConnMaxLifetime: def.ConnMaxLifetime,
		ConnMaxIdleTime: def.ConnMaxIdleTime,
	}
	log := s.logger.Named(def.Name)

	switch def.Mode {
	case config.ModeEvict:
		// Phase 2
		p, err := pool.OpenEvicting(def.Name, dialect, url, evictAdapter, tune, pool.WithLogger(log))
		if err != nil {
			return Entry{}, err
		}
		s.evicted = append(s.evicted, p)
		// Phase 3
		evictAdapter.Bind(p)
		return Entry{Config: def, Pool: p, Adapter: evictAdapter}, nil

	case config.ModeRefresh:
		p, err := pool.NewRefreshablePool(def.Name, dialect, url, initial, tune, pool.WithLogger(log))
		if err != nil {
			return Entry{}, err
		}
		if err := s.manager.Add(p); err != nil {
			_ = p.Close()
			return Entry{}, err
		}
		return Entry{Config: def, Pool: p, Adapter: pool.NewRefreshAdapter(def.Name, p.Settings(), s.manager)}, nil

	case config.ModeDirect:
		provider := secretsource.NewLiveProvider(reader, initial, log)
		p, err := pool.OpenEvicting(def.Name, dialect, url, provider, tune, pool.WithLogger(log))
		if err != nil {
			return Entry{}, err
		}
		s.evicted = append(s.evicted, p)
		return Entry{Config: def, Pool: p}, nil

	default:
		return Entry{}, fmt.Errorf("pool %s: unknown mode %q", def.Name, def.Mode)
	}
}

// idleLimit maps a configured max_idle of 0 to "no idle connections".
func idleLimit(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

// Entries returns the pools in configuration order.
func (s *Set) Entries() []Entry {
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Adapters returns the adapters to register with the coordinator, in
// configuration order.
func (s *Set) Adapters() []credential.Updatable {
	var adapters []credential.Updatable
	for _, e := range s.entries {
		if e.Adapter != nil {
			adapters = append(adapters, e.Adapter)
		}
	}
	return adapters
}

// Get returns the named pool.
func (s *Set) Get(name string) (Pool, bool) {
	for _, e := range s.entries {
		if e.Pool.Name() == name {
			return e.Pool, true
		}
	}
	return nil, false
}

// Close closes every pool.
func (s *Set) Close() error {
	var errs []error
	for _, p := range s.evicted {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pool %s: %w", p.Name(), err))
		}
	}
	if err := s.manager.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
