package hipaa

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
)

// GCMSealer encrypts PHI blobs with AES-256-GCM. Each ciphertext starts with
// a one-byte key version followed by the nonce, so data written under a
// retired key stays readable while that key is registered as previous.
type GCMSealer struct {
	mu         sync.RWMutex
	current    cipher.AEAD
	currentVer byte
	previous   map[byte]cipher.AEAD
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}

// NewGCMSealer seals with key under version. Version 0 is reserved.
func NewGCMSealer(key []byte, version byte) (*GCMSealer, error) {
	if version == 0 {
		return nil, fmt.Errorf("phi sealer: key version 0 is reserved")
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, fmt.Errorf("phi sealer: %w", err)
	}
	return &GCMSealer{current: aead, currentVer: version, previous: make(map[byte]cipher.AEAD)}, nil
}

// AddPreviousKey registers a retired key for Open only.
func (s *GCMSealer) AddPreviousKey(key []byte, version byte) error {
	aead, err := newAEAD(key)
	if err != nil {
		return fmt.Errorf("phi sealer: previous key v%d: %w", version, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if version == s.currentVer {
		return fmt.Errorf("phi sealer: version %d is the current key", version)
	}
	s.previous[version] = aead
	return nil
}

// Seal encrypts plaintext; aad is authenticated but not stored.
func (s *GCMSealer) Seal(plaintext, aad []byte) ([]byte, error) {
	s.mu.RLock()
	aead, ver := s.current, s.currentVer
	s.mu.RUnlock()

	out := make([]byte, 1+aead.NonceSize(), 1+aead.NonceSize()+len(plaintext)+aead.Overhead())
	out[0] = ver
	nonce := out[1:]
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("phi seal: generate nonce: %w", err)
	}
	return aead.Seal(out, nonce, plaintext, aad), nil
}

// Open decrypts data produced by Seal with the same aad.
func (s *GCMSealer) Open(data, aad []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("phi open: ciphertext too short")
	}
	aead, err := s.keyFor(data[0])
	if err != nil {
		return nil, err
	}
	body := data[1:]
	if len(body) < aead.NonceSize() {
		return nil, fmt.Errorf("phi open: ciphertext too short")
	}
	nonce, ct := body[:aead.NonceSize()], body[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("phi open: %w", err)
	}
	return plaintext, nil
}

// NeedsReseal reports whether data was sealed under a retired key.
func (s *GCMSealer) NeedsReseal(data []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(data) > 0 && data[0] != s.currentVer
}

func (s *GCMSealer) CurrentVersion() byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentVer
}

func (s *GCMSealer) keyFor(ver byte) (cipher.AEAD, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ver == s.currentVer {
		return s.current, nil
	}
	if aead, ok := s.previous[ver]; ok {
		return aead, nil
	}
	return nil, fmt.Errorf("phi open: no key for version %d", ver)
}
