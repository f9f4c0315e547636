// Package secure protects decrypted secret values in memory for as long
// as the daemon holds them: each value lives in its own memguard enclave
// (encrypted at rest in RAM, mlock'd against swap, guard-paged against
// overflow) and is only ever materialized into ordinary, plaintext Go
// strings for the short, specific operations that need them (an exec's
// environment merge, a scrubber rebuild).
package secure

import (
	"sync"

	"github.com/awnumar/memguard"

	dserrors "github.com/CourageToGroww/secret-keeper/internal/errors"
)

// secureBuffer is one secret value's protected storage: an encrypted
// memguard enclave, opened into a locked buffer only for the instant a
// caller needs the plaintext back. SecretMap is its only constructor, so
// it carries no exported surface of its own — the daemon never reasons
// about an individual buffer, only about the map as a whole.
type secureBuffer struct {
	mu        sync.RWMutex
	enclave   *memguard.Enclave
	destroyed bool
}

// newSecureBuffer seals data into a fresh enclave. The caller's slice is
// not retained; memguard copies it into protected memory immediately.
func newSecureBuffer(data []byte) *secureBuffer {
	return &secureBuffer{enclave: memguard.NewEnclave(data)}
}

// open decrypts the enclave into a locked buffer the caller must Destroy
// when done. Opening a destroyed buffer is ErrSecretBufferDestroyed
// rather than a silently-empty result — a reload that raced a Destroy
// should surface as an error, not as a secret that quietly evaporated.
func (b *secureBuffer) open() (*memguard.LockedBuffer, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.destroyed {
		return nil, dserrors.ErrSecretBufferDestroyed
	}
	return b.enclave.Open()
}

// destroy is idempotent: the enclave's own encrypted memory is safe even
// without this call (it is garbage collected like any other value), so
// destroy only needs to stop future opens from succeeding.
func (b *secureBuffer) destroy() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.destroyed {
		return
	}
	b.enclave = nil
	b.destroyed = true
}

// SecretMap holds the daemon's currently loaded secret set, one
// secureBuffer per name. It is the "single mutable owner for the hot
// path" the design calls for: callers build a fresh SecretMap whenever
// the vault's secret set changes and swap it in as one unit alongside
// the scrubber built from the same values, never mutating an existing
// SecretMap in place.
type SecretMap struct {
	mu      sync.RWMutex
	buffers map[string]*secureBuffer
}

// NewSecretMap copies every value in values into its own protected
// enclave. The caller's map is not retained or zeroed — callers should
// discard their plaintext copy once the SecretMap is constructed.
func NewSecretMap(values map[string]string) *SecretMap {
	m := &SecretMap{buffers: make(map[string]*secureBuffer, len(values))}
	for name, value := range values {
		m.buffers[name] = newSecureBuffer([]byte(value))
	}
	return m
}

// Materialize decrypts every entry into an ordinary map[string]string for
// the duration of one exec's environment merge or one scrubber
// rebuild. The result is plaintext and short-lived by convention — it is
// not itself protected once returned, since os/exec and regexp both need
// ordinary strings.
func (m *SecretMap) Materialize() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.buffers))
	for name, buf := range m.buffers {
		locked, err := buf.open()
		if err != nil {
			continue
		}
		out[name] = string(locked.Bytes())
		locked.Destroy()
	}
	return out
}

// Names returns the loaded secret names, sorted by the caller if order
// matters. Used to answer the daemon's "list" action without touching any
// plaintext value.
func (m *SecretMap) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.buffers))
	for name := range m.buffers {
		names = append(names, name)
	}
	return names
}

// Len reports how many secrets are currently loaded.
func (m *SecretMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.buffers)
}

// Destroy drops every entry. Called on daemon shutdown and right after a
// SecretMap has been swapped out for a freshly reloaded one, so no value
// can be opened from the old map afterwards.
func (m *SecretMap) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, buf := range m.buffers {
		buf.destroy()
	}
	m.buffers = nil
}
