package auth

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// minSecretLength is the shortest SECRET_KEY accepted; config.Validate
// applies the same floor at startup.
const minSecretLength = 16

// DeriveKey stretches the configured SECRET_KEY into a 32-byte key for one
// purpose. Different purposes ("session", ...) get unrelated keys, so a key
// leaked from one use can't forge values for another.
//
// HKDF (RFC 5869) is the standard tool for this: extract a uniform
// pseudo-random key from the secret, then expand it with a context label.
func DeriveKey(secret, purpose string) ([]byte, error) {
	if len(secret) < minSecretLength {
		return nil, errors.New("auth: SECRET_KEY must be at least 16 characters")
	}

	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), []byte("sumday"), []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("auth: deriving %s key: %w", purpose, err)
	}
	return key, nil
}
