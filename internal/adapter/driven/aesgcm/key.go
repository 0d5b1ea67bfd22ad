package aesgcm

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

// MinPassphraseLength is the shortest secret accepted as a passphrase.
const MinPassphraseLength = 16

// Argon2id parameters for passphrase-derived keys. Changing any of these
// changes the derived key and makes existing records unreadable.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

var passphraseSalt = []byte("credvault/key/v1")

// KeyFromSecret turns the configured secret into a 32-byte key. A secret that
// decodes as 64 hex characters or as base64 of 32 bytes is used directly;
// anything else of at least MinPassphraseLength characters is treated as a
// passphrase and stretched with Argon2id.
func KeyFromSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, model.ErrEncryptionKeyNotSet
	}

	if len(secret) == hex.EncodedLen(KeySize) {
		if key, err := hex.DecodeString(secret); err == nil {
			return key, nil
		}
	}
	if key, err := base64.StdEncoding.DecodeString(secret); err == nil && len(key) == KeySize {
		return key, nil
	}

	if len(secret) < MinPassphraseLength {
		return nil, fmt.Errorf("secret key must be 32 bytes as hex or base64, or a passphrase of at least %d characters", MinPassphraseLength)
	}
	return argon2.IDKey([]byte(secret), passphraseSalt, argonTime, argonMemory, argonThreads, KeySize), nil
}

// NewFromSecret is KeyFromSecret followed by New.
func NewFromSecret(secret string) (*Cipher, error) {
	key, err := KeyFromSecret(secret)
	if err != nil {
		return nil, err
	}
	return New(key)
}
