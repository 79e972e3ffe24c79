package hipaa

import (
	"encoding/hex"
	"fmt"

	"github.com/rs/zerolog"
)

// Sealer is what storage layers use to protect PHI at rest.
type Sealer interface {
	Seal(plaintext, aad []byte) ([]byte, error)
	Open(ciphertext, aad []byte) ([]byte, error)
}

// NewSealer builds the sealer for HIPAA_ENCRYPTION_KEY. previous lists
// retired keys oldest first; they get versions 1..n and the current key n+1.
//
// With no key, encryption is disabled and data is stored as-is. Config
// validation refuses that in production.
func NewSealer(key string, previous []string, logger zerolog.Logger) (Sealer, error) {
	if key == "" {
		logger.Warn().Msg("PHI encryption disabled: HIPAA_ENCRYPTION_KEY is not set")
		return PlaintextSealer{}, nil
	}

	if len(previous) > 254 {
		return nil, fmt.Errorf("too many previous HIPAA keys: %d", len(previous))
	}
	current, err := decodeKey("HIPAA_ENCRYPTION_KEY", key)
	if err != nil {
		return nil, err
	}
	sealer, err := NewGCMSealer(current, byte(len(previous)+1))
	if err != nil {
		return nil, err
	}
	for i, k := range previous {
		raw, err := decodeKey(fmt.Sprintf("HIPAA_PREVIOUS_KEYS[%d]", i), k)
		if err != nil {
			return nil, err
		}
		if err := sealer.AddPreviousKey(raw, byte(i+1)); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Int("key_version", int(sealer.CurrentVersion())).
		Int("previous_keys", len(previous)).
		Msg("PHI encryption enabled")
	return sealer, nil
}

func decodeKey(name, key string) ([]byte, error) {
	raw, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", name, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%s must be 32 bytes (64 hex chars), got %d bytes", name, len(raw))
	}
	return raw, nil
}

// PlaintextSealer stores data unencrypted. Development only.
type PlaintextSealer struct{}

func (PlaintextSealer) Seal(plaintext, _ []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

func (PlaintextSealer) Open(data, _ []byte) ([]byte, error) {
	return append([]byte(nil), data...), nil
}
