// Package secure provides memory-safe staging for key material and
// decrypted secret values, built on memguard. Data held in a Buffer is
// encrypted at rest in memory and protected from swapping via mlock.
package secure

import (
	"sync"

	"github.com/awnumar/memguard"
)

// Buffer holds sensitive bytes in an encrypted memguard enclave.
type Buffer struct {
	enclave *memguard.Enclave
	mu      sync.RWMutex
	// destroyed allows idempotent Destroy() and prevents use after destroy.
	destroyed bool
}

// NewBuffer moves data into a protected memory region. The source
// slice is wiped in the process; pass a copy to keep using it.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{enclave: memguard.NewEnclave(data)}
}

// Open decrypts the buffer and returns a locked plaintext view. The
// caller MUST call Destroy() on the returned LockedBuffer when done.
func (b *Buffer) Open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return memguard.NewBufferFromBytes([]byte{}), nil
	}
	return b.enclave.Open()
}

// Destroy marks the buffer as destroyed. Idempotent; after Destroy,
// Open returns an empty buffer. For full cleanup of all memguard state
// call memguard.Purge() at process exit.
func (b *Buffer) Destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}

// Wipe zeroes a byte slice holding transient plaintext.
func Wipe(data []byte) {
	memguard.WipeBytes(data)
}
