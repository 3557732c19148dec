package crypto

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "passq/pkg/domain-errors"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestKeyring_RoundTrip(t *testing.T) {
	kr, err := NewKeyring(map[uint8][]byte{1: testKey(t)}, 1)
	require.NoError(t, err)

	plaintext := []byte("hunter2: the password for everything")
	blob, err := kr.Encrypt(plaintext)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), blob.Version)
	assert.Len(t, blob.Nonce, 12)
	assert.NotEqual(t, plaintext, blob.Ciphertext)

	got, err := kr.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestKeyring_EmptyPlaintext(t *testing.T) {
	kr, err := NewKeyring(map[uint8][]byte{1: testKey(t)}, 1)
	require.NoError(t, err)

	blob, err := kr.Encrypt(nil)
	require.NoError(t, err)

	got, err := kr.Decrypt(blob)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKeyring_NonceUniqueness(t *testing.T) {
	kr, err := NewKeyring(map[uint8][]byte{1: testKey(t)}, 1)
	require.NoError(t, err)

	const n = 100_000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		blob, err := kr.Encrypt([]byte("x"))
		require.NoError(t, err)
		_, dup := seen[string(blob.Nonce)]
		require.False(t, dup, "nonce repeated after %d encryptions", i)
		seen[string(blob.Nonce)] = struct{}{}
	}
}

func TestKeyring_TamperedCiphertextFails(t *testing.T) {
	kr, err := NewKeyring(map[uint8][]byte{1: testKey(t)}, 1)
	require.NoError(t, err)

	blob, err := kr.Encrypt([]byte("secret payload"))
	require.NoError(t, err)

	for i := range blob.Ciphertext {
		tampered := &Blob{
			Version:    blob.Version,
			Nonce:      blob.Nonce,
			Ciphertext: bytes.Clone(blob.Ciphertext),
		}
		tampered.Ciphertext[i] ^= 0x01

		got, err := kr.Decrypt(tampered)
		require.Error(t, err, "flipping byte %d should fail authentication", i)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrityFailure))
		assert.Nil(t, got)
	}
}

func TestKeyring_TamperedNonceFails(t *testing.T) {
	kr, err := NewKeyring(map[uint8][]byte{1: testKey(t)}, 1)
	require.NoError(t, err)

	blob, err := kr.Encrypt([]byte("secret payload"))
	require.NoError(t, err)

	blob.Nonce[0] ^= 0x01
	_, err = kr.Decrypt(blob)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrityFailure))
}

func TestKeyring_KeyRotation(t *testing.T) {
	oldKey := testKey(t)
	newKey := testKey(t)

	oldRing, err := NewKeyring(map[uint8][]byte{1: oldKey}, 1)
	require.NoError(t, err)
	blob, err := oldRing.Encrypt([]byte("sealed under v1"))
	require.NoError(t, err)

	// Rotated ring keeps v1 for decryption but seals new records with v2.
	rotated, err := NewKeyring(map[uint8][]byte{1: oldKey, 2: newKey}, 2)
	require.NoError(t, err)

	got, err := rotated.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("sealed under v1"), got)

	fresh, err := rotated.Encrypt([]byte("sealed under v2"))
	require.NoError(t, err)
	assert.Equal(t, uint8(2), fresh.Version)
}

func TestKeyring_UnknownVersion(t *testing.T) {
	kr, err := NewKeyring(map[uint8][]byte{2: testKey(t)}, 2)
	require.NoError(t, err)

	blob, err := kr.Encrypt([]byte("data"))
	require.NoError(t, err)
	blob.Version = 7

	_, err = kr.Decrypt(blob)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeKeyNotFound))
}

func TestNewKeyring_Validation(t *testing.T) {
	t.Run("wrong key size", func(t *testing.T) {
		_, err := NewKeyring(map[uint8][]byte{1: make([]byte, 16)}, 1)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("missing current version", func(t *testing.T) {
		_, err := NewKeyring(map[uint8][]byte{1: make([]byte, KeySize)}, 2)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeKeyNotFound))
	})

	t.Run("no keys", func(t *testing.T) {
		_, err := NewKeyring(nil, 1)
		require.Error(t, err)
	})
}

func TestBlobEncoding_RoundTrip(t *testing.T) {
	kr, err := NewKeyring(map[uint8][]byte{3: testKey(t)}, 3)
	require.NoError(t, err)

	blob, err := kr.Encrypt([]byte("wire format check"))
	require.NoError(t, err)

	encoded := EncodeBlob(blob)
	assert.Equal(t, blob.Version, encoded[0])

	decoded, err := DecodeBlob(encoded)
	require.NoError(t, err)
	assert.Equal(t, blob.Version, decoded.Version)
	assert.Equal(t, blob.Nonce, decoded.Nonce)
	assert.Equal(t, blob.Ciphertext, decoded.Ciphertext)

	got, err := kr.Decrypt(decoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("wire format check"), got)
}

func TestDecodeBlob_TooShort(t *testing.T) {
	_, err := DecodeBlob([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrityFailure))
}

func TestKeyring_StringRoundTrip(t *testing.T) {
	kr, err := NewKeyring(map[uint8][]byte{1: testKey(t)}, 1)
	require.NoError(t, err)

	encoded, err := kr.EncryptString("s3cr3t-value")
	require.NoError(t, err)
	assert.NotContains(t, encoded, "s3cr3t-value")

	got, err := kr.DecryptString(encoded)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t-value", got)
}

func TestKeyring_StringBadBase64(t *testing.T) {
	kr, err := NewKeyring(map[uint8][]byte{1: testKey(t)}, 1)
	require.NoError(t, err)

	_, err = kr.DecryptString("not base64!!!")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrityFailure))
}
