package pool

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/poolrotate/pkg/credential"
)

type countingEvicter struct {
	calls atomic.Int32
}

func (e *countingEvicter) SoftEvictConnections() { e.calls.Add(1) }

func TestEvictAdapterServesInitialPair(t *testing.T) {
	a := NewEvictAdapter("primary", credential.NewPair("svc", "p1"))
	assert.Equal(t, "primary", a.Name())
	assert.Equal(t, credential.NewPair("svc", "p1"), a.Credentials())
}

func TestEvictAdapterUpdateEvictsOnce(t *testing.T) {
	a := NewEvictAdapter("primary", credential.NewPair("svc", "p1"))
	evicter := &countingEvicter{}
	a.Bind(evicter)

	require.NoError(t, a.Update("svc", "p2"))

	assert.Equal(t, credential.NewPair("svc", "p2"), a.Credentials())
	assert.Equal(t, int32(1), evicter.calls.Load())
}

func TestEvictAdapterUpdateBeforeBind(t *testing.T) {
	a := NewEvictAdapter("primary", credential.NewPair("svc", "p1"))

	require.NoError(t, a.Update("svc", "p2"))
	assert.Equal(t, credential.NewPair("svc", "p2"), a.Credentials())

	evicter := &countingEvicter{}
	a.Bind(evicter)
	a.Bind(nil)
	require.NoError(t, a.Update("svc", "p3"))
	assert.Zero(t, evicter.calls.Load())
}

func TestEvictAdapterNeverTearsPair(t *testing.T) {
	a := NewEvictAdapter("primary", credential.NewPair("user-0", "pass-0"))
	a.Bind(&countingEvicter{})

	var stop atomic.Bool
	var wg sync.WaitGroup
	var torn atomic.Int32

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for !stop.Load() {
				pair := a.Credentials()
				if strings.TrimPrefix(pair.Username, "user-") != strings.TrimPrefix(pair.Password, "pass-") {
					torn.Add(1)
				}
			}
		}()
	}

	for i := 1; i <= 5000; i++ {
		require.NoError(t, a.Update(fmt.Sprintf("user-%d", i), fmt.Sprintf("pass-%d", i)))
	}
	stop.Store(true)
	wg.Wait()

	assert.Zero(t, torn.Load())
	assert.Equal(t, credential.NewPair("user-5000", "pass-5000"), a.Credentials())
}
