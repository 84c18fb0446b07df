// Package secure keeps long-lived secret values sealed in memory.
//
// It wraps the memguard library so that a value held for the lifetime of the
// process, such as the rotation coordinator's last-known password, is:
//
//   - Encrypted at rest in memory (XSalsa20Poly1305)
//   - Only decrypted into mlocked, guard-paged buffers while in use
//   - Wiped from those buffers immediately after use
//
// # Usage
//
//	sealed := secure.Seal(password)
//	if sealed.Equal(candidate) {
//	    // unchanged
//	}
//	plain, err := sealed.Reveal()
//
// # Cleanup
//
// Call Purge when the process exits to wipe the enclave key and any buffers
// still in memory.
package secure
