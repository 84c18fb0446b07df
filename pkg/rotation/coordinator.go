package rotation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/internal/secure"
	"github.com/systmms/poolrotate/pkg/credential"
	"github.com/systmms/poolrotate/pkg/secretsource"
)

// DefaultInterval is the delay between two credential checks.
const DefaultInterval = 30 * time.Second

// Tick outcomes passed to Recorder.ObserveTick.
const (
	OutcomeUnchanged   = "unchanged"
	OutcomeRotated     = "rotated"
	OutcomePartial     = "partial"
	OutcomeUnavailable = "unavailable"
	OutcomeReadError   = "read_error"
	OutcomeCacheError  = "cache_error"
)

var (
	// ErrRegistryFrozen is returned by Register once Run has started.
	ErrRegistryFrozen = errors.New("adapter registry is frozen once the coordinator is running")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("coordinator is already running")

	// ErrCacheUnavailable is returned by Tick when the sealed credential cache
	// cannot be compared or replaced.
	ErrCacheUnavailable = errors.New("credential cache unavailable")
)

// SecretReader is the read side of the secret source.
type SecretReader interface {
	Read(name string) (string, error)
}

// Recorder receives observations about ticks and adapter updates.
type Recorder interface {
	ObserveTick(outcome string)
	ObserveUpdate(adapter string, err error, d time.Duration)
	ObserveRotation(at time.Time)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTick(string)                         {}
func (nopRecorder) ObserveUpdate(string, error, time.Duration) {}
func (nopRecorder) ObserveRotation(time.Time)                  {}

type registration struct {
	name    string
	adapter credential.Updatable
}

// Coordinator periodically re-reads the credential files and pushes changed
// credentials to every registered adapter.
//
// The cached pair is owned by the coordinator and only mutated inside Tick.
// The password is kept sealed in memory between ticks. tickMu serializes
// whole ticks; cacheMu guards only the cached pair so Current never waits on
// a notification round.
type Coordinator struct {
	reader   SecretReader
	interval time.Duration
	clock    clockwork.Clock
	logger   *logging.Logger
	recorder Recorder

	regMu    sync.Mutex
	adapters []registration
	running  bool

	tickMu sync.Mutex
	seal   func(string) *secure.SealedString

	cacheMu  sync.RWMutex
	set      bool
	username string
	password *secure.SealedString
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithInterval sets the delay between ticks in Run.
func WithInterval(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithClock replaces the wall clock, typically with a fake in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) {
		c.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.recorder = r
		}
	}
}

// NewCoordinator creates a coordinator reading from reader. The cached pair
// starts unset, so the first successful tick always notifies.
func NewCoordinator(reader SecretReader, opts ...Option) *Coordinator {
	c := &Coordinator{
		reader:   reader,
		interval: DefaultInterval,
		clock:    clockwork.NewRealClock(),
		logger:   logging.NewNop(),
		recorder: nopRecorder{},
		seal:     secure.Seal,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Interval returns the configured delay between ticks.
func (c *Coordinator) Interval() time.Duration {
	return c.interval
}

// Register appends an adapter. Adapters are notified in registration order.
// Registration is only allowed before Run.
func (c *Coordinator) Register(adapter credential.Updatable) error {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	if c.running {
		return ErrRegistryFrozen
	}

	name := fmt.Sprintf("adapter-%d", len(c.adapters))
	if named, ok := adapter.(interface{ Name() string }); ok && named.Name() != "" {
		name = named.Name()
	}

	c.adapters = append(c.adapters, registration{name: name, adapter: adapter})
	c.logger.Debug("Registered credential adapter %s", name)
	return nil
}

// Adapters returns the registered adapter names in notification order.
func (c *Coordinator) Adapters() []string {
	c.regMu.Lock()
	defer c.regMu.Unlock()

	names := make([]string, 0, len(c.adapters))
	for _, reg := range c.adapters {
		names = append(names, reg.name)
	}
	return names
}

// Current returns the last successfully read pair, and false while unset.
func (c *Coordinator) Current() (pair credential.Pair, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			pair, ok = credential.Pair{}, false
		}
	}()

	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	if !c.set {
		return credential.Pair{}, false
	}
	password, err := c.password.Reveal()
	if err != nil {
		return credential.Pair{}, false
	}
	return credential.NewPair(c.username, password), true
}

// Tick performs one credential check.
//
// A missing or unreadable secret abandons the tick without touching the cache
// and returns nil. When the pair changed, every adapter is called in order
// with the same pair; adapter failures (including panics) are collected and
// returned together after all adapters have been called.
func (c *Coordinator) Tick() error {
	c.tickMu.Lock()
	defer c.tickMu.Unlock()

	candidate, err := c.read()
	if err != nil {
		if errors.Is(err, secretsource.ErrSecretUnavailable) {
			c.logger.Debug("Skipping credential check: %v", err)
			c.recorder.ObserveTick(OutcomeUnavailable)
			return nil
		}
		c.recorder.ObserveTick(OutcomeReadError)
		return fmt.Errorf("read credentials: %w", err)
	}

	changed, err := c.store(candidate)
	if err != nil {
		c.recorder.ObserveTick(OutcomeCacheError)
		return err
	}
	if !changed {
		c.recorder.ObserveTick(OutcomeUnchanged)
		return nil
	}

	if err := c.notify(candidate); err != nil {
		c.recorder.ObserveTick(OutcomePartial)
		return err
	}
	c.recorder.ObserveTick(OutcomeRotated)
	return nil
}

// Run ticks immediately and then again each interval after the previous tick
// finished, until ctx is done. Tick errors are logged and never stop the loop.
func (c *Coordinator) Run(ctx context.Context) error {
	c.regMu.Lock()
	if c.running {
		c.regMu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	adapterCount := len(c.adapters)
	c.regMu.Unlock()

	c.logger.Info("Watching credentials every %s with %d adapters", c.interval, adapterCount)

	for {
		if err := c.Tick(); err != nil {
			c.logger.Error("Credential check failed: %v", err)
		}

		select {
		case <-ctx.Done():
			c.logger.Info("Credential watcher stopped")
			return ctx.Err()
		case <-c.clock.After(c.interval):
		}
	}
}

// read builds the candidate pair. Both fields are read before anything is
// compared or published.
func (c *Coordinator) read() (credential.Pair, error) {
	username, err := c.reader.Read(secretsource.NameUsername)
	if err != nil {
		return credential.Pair{}, err
	}
	password, err := c.reader.Read(secretsource.NamePassword)
	if err != nil {
		return credential.Pair{}, err
	}
	return credential.NewPair(username, password), nil
}

// store replaces the cached pair when candidate differs from it. memguard
// panics when it cannot lock or encrypt memory; that is reported as an error
// and the cache keeps its previous value.
func (c *Coordinator) store(candidate credential.Pair) (changed bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			changed, err = false, fmt.Errorf("%w: %v", ErrCacheUnavailable, r)
		}
	}()

	c.cacheMu.RLock()
	same := c.set && c.username == candidate.Username && c.password.Equal(candidate.Password)
	c.cacheMu.RUnlock()
	if same {
		return false, nil
	}

	sealed := c.seal(candidate.Password)

	c.cacheMu.Lock()
	previous := c.password
	c.username = candidate.Username
	c.password = sealed
	c.set = true
	c.cacheMu.Unlock()

	previous.Destroy()
	return true, nil
}

func (c *Coordinator) notify(pair credential.Pair) error {
	c.regMu.Lock()
	adapters := make([]registration, len(c.adapters))
	copy(adapters, c.adapters)
	c.regMu.Unlock()

	log := c.logger.With("round", uuid.NewString())
	log.Info("Credentials changed for user %s, notifying %d adapters", pair.Username, len(adapters))

	var errs []error
	for _, reg := range adapters {
		start := c.clock.Now()
		err := invoke(reg.adapter, pair)
		c.recorder.ObserveUpdate(reg.name, err, c.clock.Since(start))

		if err != nil {
			log.Error("Adapter %s failed to apply credentials: %v", reg.name, err)
			errs = append(errs, fmt.Errorf("adapter %s: %w", reg.name, err))
			continue
		}
		log.Debug("Adapter %s applied credentials", reg.name)
	}

	c.recorder.ObserveRotation(c.clock.Now())
	return errors.Join(errs...)
}

func invoke(adapter credential.Updatable, pair credential.Pair) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during credential update: %v", r)
		}
	}()
	return adapter.Update(pair.Username, pair.Password)
}
