package aesgcm

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/credvault/internal/domain/model"
)

func testKey(fill byte) []byte {
	return bytes.Repeat([]byte{fill}, KeySize)
}

func newTestCipher(t *testing.T, fill byte) *Cipher {
	t.Helper()
	c, err := New(testKey(fill))
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t, 1)
	aad := []byte("alice:github:project:myapp")

	for _, plaintext := range []string{
		"ghp_" + strings.Repeat("a", 36),
		"sk-ant-api03-" + strings.Repeat("x", 80),
		"glpat-ünïcødé-" + strings.Repeat("9", 20),
	} {
		sealed, err := c.Seal([]byte(plaintext), aad)
		require.NoError(t, err)
		assert.Len(t, sealed.IV, 12)
		assert.Len(t, sealed.AuthTag, 16)
		assert.Equal(t, c.KeyID(), sealed.KeyID)
		assert.NotContains(t, string(sealed.Ciphertext), plaintext)

		got, err := c.Open(sealed, aad)
		require.NoError(t, err)
		assert.Equal(t, plaintext, string(got))
	}
}

func TestCipher_FreshNoncePerSeal(t *testing.T) {
	c := newTestCipher(t, 1)

	a, err := c.Seal([]byte("same plaintext value"), nil)
	require.NoError(t, err)
	b, err := c.Seal([]byte("same plaintext value"), nil)
	require.NoError(t, err)

	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Ciphertext, b.Ciphertext)
}

func TestCipher_TamperDetection(t *testing.T) {
	c := newTestCipher(t, 1)
	aad := []byte("alice:openai")
	sealed, err := c.Seal([]byte("sk-"+strings.Repeat("q", 40)), aad)
	require.NoError(t, err)

	flip := func(field string, b []byte) {
		for i := range b {
			for bit := 0; bit < 8; bit++ {
				b[i] ^= 1 << bit
				_, err := c.Open(sealed, aad)
				require.Error(t, err, "%s byte %d bit %d", field, i, bit)
				require.ErrorIs(t, err, model.ErrIntegrity)
				b[i] ^= 1 << bit
			}
		}
	}

	flip("ciphertext", sealed.Ciphertext)
	flip("iv", sealed.IV)
	flip("auth_tag", sealed.AuthTag)

	got, err := c.Open(sealed, aad)
	require.NoError(t, err, "restored value must open again")
	assert.Equal(t, "sk-"+strings.Repeat("q", 40), string(got))
}

func TestCipher_AssociatedDataBindsRecord(t *testing.T) {
	c := newTestCipher(t, 1)
	sealed, err := c.Seal([]byte("credential-for-alice-0001"), []byte("alice:github"))
	require.NoError(t, err)

	_, err = c.Open(sealed, []byte("mallory:github"))
	assert.ErrorIs(t, err, model.ErrIntegrity)
}

func TestCipher_WrongKeyFailsClosed(t *testing.T) {
	sealed, err := newTestCipher(t, 1).Seal([]byte("credential-value-xyz-123"), nil)
	require.NoError(t, err)

	got, err := newTestCipher(t, 2).Open(sealed, nil)
	assert.ErrorIs(t, err, model.ErrIntegrity)
	assert.Nil(t, got)
}

func TestCipher_RejectsMalformedSealedValue(t *testing.T) {
	c := newTestCipher(t, 1)
	sealed, err := c.Seal([]byte("credential-value-xyz-123"), nil)
	require.NoError(t, err)

	tests := map[string]model.SealedValue{
		"missing tag":   {Ciphertext: sealed.Ciphertext, IV: sealed.IV},
		"missing iv":    {Ciphertext: sealed.Ciphertext, AuthTag: sealed.AuthTag},
		"short iv":      {Ciphertext: sealed.Ciphertext, IV: sealed.IV[:8], AuthTag: sealed.AuthTag},
		"truncated tag": {Ciphertext: sealed.Ciphertext, IV: sealed.IV, AuthTag: sealed.AuthTag[:12]},
	}
	for name, sv := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Open(sv, nil)
			assert.ErrorIs(t, err, model.ErrIntegrity)
		})
	}
}

func TestNew_KeyValidation(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, model.ErrEncryptionKeyNotSet)

	_, err = New(make([]byte, 16))
	assert.Error(t, err)
}

func TestCipher_KeyIDDistinguishesKeys(t *testing.T) {
	a := newTestCipher(t, 1)
	b := newTestCipher(t, 2)
	assert.NotEqual(t, a.KeyID(), b.KeyID())
	assert.Equal(t, a.KeyID(), newTestCipher(t, 1).KeyID())
}

func TestKeyFromSecret(t *testing.T) {
	raw := testKey(7)

	key, err := KeyFromSecret(hex.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	key, err = KeyFromSecret(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	p1, err := KeyFromSecret("correct horse battery staple")
	require.NoError(t, err)
	assert.Len(t, p1, KeySize)
	p2, err := KeyFromSecret("correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, p1, p2, "passphrase derivation must be deterministic")

	_, err = KeyFromSecret("")
	assert.ErrorIs(t, err, model.ErrEncryptionKeyNotSet)

	_, err = KeyFromSecret("tooshort")
	assert.Error(t, err)
}
