package cinet

import "sync"

// CipherCache memoizes derived Blowfish key schedules per passphrase. Keyed
// by passphrase content rather than device identity: two devices sharing a
// passphrase intentionally share a schedule. Entries live for the process
// lifetime — bounded by the number of distinct device passphrases, which is
// small, so there's no eviction.
type CipherCache struct {
	mu      sync.RWMutex
	ciphers map[string]*ecbCipher
}

// NewCipherCache returns an empty cache ready for use.
func NewCipherCache() *CipherCache {
	return &CipherCache{ciphers: make(map[string]*ecbCipher)}
}

// get returns the cipher for passphrase, deriving and storing it on first
// use. Lookup takes the read lock; only a miss takes the write lock.
func (c *CipherCache) get(passphrase string) (*ecbCipher, error) {
	c.mu.RLock()
	cipher, ok := c.ciphers[passphrase]
	c.mu.RUnlock()
	if ok {
		return cipher, nil
	}

	cipher, err := deriveCipher(passphrase)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Re-check under the write lock: another goroutine may have derived
	// the same passphrase's schedule concurrently.
	if existing, ok := c.ciphers[passphrase]; ok {
		return existing, nil
	}
	c.ciphers[passphrase] = cipher
	return cipher, nil
}

// Len reports the number of distinct passphrases cached. Exposed for tests
// that assert no cipher work happens for rejected frames (spec §8: "Unknown
// device_key ... no cipher cache entry created").
func (c *CipherCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ciphers)
}
