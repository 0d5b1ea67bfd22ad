package driven

import "github.com/ericfisherdev/credvault/internal/domain/model"

// Cipher is the driven port for authenticated credential encryption.
//
// aad is bound to the ciphertext without being encrypted. The vault passes
// the storage key so that a sealed value copied onto another record fails
// to open.
type Cipher interface {
	// Seal encrypts plaintext under a fresh random nonce.
	Seal(plaintext, aad []byte) (model.SealedValue, error)

	// Open authenticates and decrypts sealed. Any mismatch of ciphertext, IV,
	// tag, aad or key fails with an error matching model.ErrIntegrity; no
	// plaintext is returned in that case.
	Open(sealed model.SealedValue, aad []byte) ([]byte, error)

	// KeyID identifies the key material in use.
	KeyID() string
}
