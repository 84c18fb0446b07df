package pool

import (
	"sync/atomic"

	"github.com/systmms/poolrotate/pkg/credential"
)

// SoftEvicter is a pool that can retire its connections lazily.
type SoftEvicter interface {
	SoftEvictConnections()
}

type evictTarget struct {
	SoftEvicter
}

// EvictAdapter is the pull-style adapter. It is the credential provider of
// an evicting pool and, once bound, soft-evicts that pool on every update.
//
// Construction happens in two phases: the adapter exists before the pool so
// the pool can be created with the adapter as provider, and the pool is bound
// afterwards with Bind.
type EvictAdapter struct {
	name    string
	current atomic.Pointer[credential.Pair]
	target  atomic.Pointer[evictTarget]
}

var (
	_ credential.Updatable = (*EvictAdapter)(nil)
	_ credential.Provider  = (*EvictAdapter)(nil)
)

// NewEvictAdapter returns an adapter serving initial until the first update.
func NewEvictAdapter(name string, initial credential.Pair) *EvictAdapter {
	a := &EvictAdapter{name: name}
	a.current.Store(&initial)
	return a
}

// Bind attaches the pool to evict on update.
func (a *EvictAdapter) Bind(pool SoftEvicter) {
	if pool == nil {
		a.target.Store(nil)
		return
	}
	a.target.Store(&evictTarget{pool})
}

// Name returns the adapter name.
func (a *EvictAdapter) Name() string { return a.name }

// Credentials returns the current pair. It never blocks and always returns
// both fields from the same update.
func (a *EvictAdapter) Credentials() credential.Pair {
	return *a.current.Load()
}

// Update publishes the new pair and soft-evicts the bound pool, if any.
func (a *EvictAdapter) Update(username, password string) error {
	pair := credential.NewPair(username, password)
	a.current.Store(&pair)

	if target := a.target.Load(); target != nil {
		target.SoftEvictConnections()
	}
	return nil
}
