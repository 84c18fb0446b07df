package secretsource

import (
	"sync/atomic"

	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/pkg/credential"
)

// LiveProvider is a credential.Provider that reads the secret files on every
// call, so each new physical connection uses whatever is currently mounted.
//
// A pool's connection path cannot handle a provider error, so when a read
// fails the last good pair is returned and the failure is logged.
type LiveProvider struct {
	reader   *Reader
	logger   *logging.Logger
	lastGood atomic.Pointer[credential.Pair]
}

// NewLiveProvider returns a provider seeded with initial.
func NewLiveProvider(reader *Reader, initial credential.Pair, logger *logging.Logger) *LiveProvider {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &LiveProvider{
		reader: reader,
		logger: logger,
	}
	p.lastGood.Store(&initial)
	return p
}

// Credentials implements credential.Provider.
func (p *LiveProvider) Credentials() credential.Pair {
	username, err := p.reader.Username()
	if err != nil {
		p.logger.Warn("Using last known credentials: %v", err)
		return *p.lastGood.Load()
	}
	password, err := p.reader.Password()
	if err != nil {
		p.logger.Warn("Using last known credentials: %v", err)
		return *p.lastGood.Load()
	}

	pair := credential.NewPair(username, password)
	p.lastGood.Store(&pair)
	p.logger.Debug("Providing credentials for user: %s", username)
	return pair
}
