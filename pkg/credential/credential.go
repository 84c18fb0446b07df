// Package credential defines the credential pair exchanged between the
// rotation coordinator and connection pools, and the two narrow capabilities
// a pool integration can expose: pulling the current pair, and accepting a
// pushed update.
package credential

import (
	"fmt"
)

// Pair is a database username and password. A Pair is a value: rotation
// always produces a new Pair, it never mutates one in place.
type Pair struct {
	Username string
	Password string
}

// NewPair builds a Pair from its two fields.
func NewPair(username, password string) Pair {
	return Pair{Username: username, Password: password}
}

// Equal reports whether both fields of p and other are identical.
func (p Pair) Equal(other Pair) bool {
	return p.Username == other.Username && p.Password == other.Password
}

// String renders the pair with the password redacted.
func (p Pair) String() string {
	return fmt.Sprintf("{username:%s password:[REDACTED]}", p.Username)
}

// GoString implements fmt.GoStringer so %#v never leaks the password.
func (p Pair) GoString() string {
	return fmt.Sprintf("credential.Pair{Username:%q, Password:[REDACTED]}", p.Username)
}

// Updatable is implemented by every pool adapter the coordinator notifies.
//
// Update must return promptly: it swaps local state and triggers (but does
// not wait for) any pool-wide convergence.
type Updatable interface {
	Update(username, password string) error
}

// Provider is the pull side used by a pool when it opens a new physical
// connection. Credentials must not block and must not fail.
type Provider interface {
	Credentials() Pair
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func() Pair

// Credentials calls f.
func (f ProviderFunc) Credentials() Pair {
	return f()
}

// Static returns a Provider that always yields p.
func Static(p Pair) Provider {
	return ProviderFunc(func() Pair { return p })
}
