package secure

import (
	"errors"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned by Reveal after Destroy.
var ErrDestroyed = errors.New("sealed value has been destroyed")

// SealedString holds a string encrypted inside a memguard enclave.
//
// memguard refuses to seal zero-length data, so the empty string is tracked
// with a flag instead of an enclave. A SealedString is immutable once built;
// it is safe for concurrent readers until Destroy is called.
type SealedString struct {
	enclave   *memguard.Enclave
	empty     bool
	destroyed bool
}

// Seal copies s into a new enclave. The caller's string is not modified.
func Seal(s string) *SealedString {
	if s == "" {
		return &SealedString{empty: true}
	}
	// NewEnclave wipes its argument, so hand it a private copy.
	return &SealedString{enclave: memguard.NewEnclave([]byte(s))}
}

// Equal reports whether the sealed value equals candidate, comparing in
// constant time inside a locked buffer.
func (s *SealedString) Equal(candidate string) bool {
	if s == nil || s.destroyed {
		return false
	}
	if s.empty {
		return candidate == ""
	}
	if candidate == "" {
		return false
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return false
	}
	defer locked.Destroy()

	return locked.EqualTo([]byte(candidate))
}

// Reveal decrypts and returns the plaintext.
func (s *SealedString) Reveal() (string, error) {
	if s == nil || s.destroyed {
		return "", ErrDestroyed
	}
	if s.empty {
		return "", nil
	}

	locked, err := s.enclave.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()

	return string(locked.Bytes()), nil
}

// Destroy drops the enclave reference. It is idempotent.
func (s *SealedString) Destroy() {
	if s == nil {
		return
	}
	s.enclave = nil
	s.destroyed = true
}

// Purge wipes every memguard buffer and replaces the enclave key. Values
// sealed before the call can no longer be revealed.
func Purge() {
	memguard.Purge()
}
