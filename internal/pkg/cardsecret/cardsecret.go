package cardsecret

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrSaltNotConfigured means CARD_SECRET_SALT is missing. This is a deployment
// invariant: the process must not serve traffic without it.
var ErrSaltNotConfigured = errors.New("card secret salt not configured")

// Hasher produces the storable fingerprint of a physical card secret.
// The same secret always hashes to the same value so the hash can be used
// as a unique lookup key against accounts.
type Hasher struct {
	salt string
}

func NewHasher(salt string) (*Hasher, error) {
	if salt == "" {
		return nil, ErrSaltNotConfigured
	}
	return &Hasher{salt: salt}, nil
}

// Hash returns the hex-encoded SHA-256 digest of secret+salt (64 chars).
func (h *Hasher) Hash(secret string) string {
	sum := sha256.Sum256([]byte(secret + h.salt))
	return hex.EncodeToString(sum[:])
}
