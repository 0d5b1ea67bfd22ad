// Package aesgcm implements the Cipher port with AES-256-GCM. The 16-byte
// authentication tag is stored detached from the ciphertext, and the caller's
// associated data (the storage key) is bound into the tag.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/ericfisherdev/credvault/internal/domain/model"
	"github.com/ericfisherdev/credvault/internal/domain/port/driven"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// Compile-time interface satisfaction check.
var _ driven.Cipher = (*Cipher)(nil)

// Cipher seals and opens credential values. It is safe for concurrent use.
type Cipher struct {
	aead  cipher.AEAD
	keyID string
	rand  io.Reader
}

// New creates a Cipher from a 32-byte key. A nil key returns
// model.ErrEncryptionKeyNotSet.
func New(key []byte) (*Cipher, error) {
	if key == nil {
		return nil, model.ErrEncryptionKeyNotSet
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}

	sum := sha256.Sum256(key)
	return &Cipher{
		aead:  gcm,
		keyID: hex.EncodeToString(sum[:4]),
		rand:  rand.Reader,
	}, nil
}

// KeyID returns a short fingerprint of the key. It identifies which key
// sealed a record without revealing the key.
func (c *Cipher) KeyID() string { return c.keyID }

// Seal encrypts plaintext under a fresh 96-bit nonce.
func (c *Cipher) Seal(plaintext, aad []byte) (model.SealedValue, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(c.rand, nonce); err != nil {
		return model.SealedValue{}, fmt.Errorf("rand nonce: %w", err)
	}

	// Seal produces ciphertext || tag; the tag is split off so the three
	// outputs can be stored and verified independently.
	out := c.aead.Seal(nil, nonce, plaintext, aad)
	split := len(out) - c.aead.Overhead()

	return model.SealedValue{
		Ciphertext: out[:split],
		IV:         nonce,
		AuthTag:    out[split:],
		KeyID:      c.keyID,
	}, nil
}

// Open authenticates and decrypts sealed. Every failure is an
// *model.IntegrityError; partial plaintext is never returned.
func (c *Cipher) Open(sealed model.SealedValue, aad []byte) ([]byte, error) {
	if !sealed.IsComplete() {
		return nil, &model.IntegrityError{Err: errors.New("sealed value is incomplete")}
	}
	if len(sealed.IV) != c.aead.NonceSize() {
		return nil, &model.IntegrityError{Err: fmt.Errorf("iv must be %d bytes, got %d", c.aead.NonceSize(), len(sealed.IV))}
	}
	if len(sealed.AuthTag) != c.aead.Overhead() {
		return nil, &model.IntegrityError{Err: fmt.Errorf("auth tag must be %d bytes, got %d", c.aead.Overhead(), len(sealed.AuthTag))}
	}

	joined := make([]byte, 0, len(sealed.Ciphertext)+len(sealed.AuthTag))
	joined = append(joined, sealed.Ciphertext...)
	joined = append(joined, sealed.AuthTag...)

	plaintext, err := c.aead.Open(nil, sealed.IV, joined, aad)
	if err != nil {
		return nil, &model.IntegrityError{Err: fmt.Errorf("gcm.Open: %w", err)}
	}
	return plaintext, nil
}
