// Package crypto implements per-record secret encryption for the vault.
//
// Every secret is sealed with AES-256-GCM under a versioned master key. The
// key version travels with the ciphertext so retired keys can keep decrypting
// old records while new records always use the current key. A fresh random
// nonce is generated per encryption and prepended to the ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	dErrors "passq/pkg/domain-errors"
)

// KeySize is the required master key length in bytes (AES-256).
const KeySize = 32

// Keyring holds the current encryption key plus any retired key versions
// still needed to decrypt existing records. Safe for concurrent use; the
// keyring is immutable after construction.
type Keyring struct {
	current uint8
	aeads   map[uint8]cipher.AEAD
}

// NewKeyring builds a keyring from raw 32-byte keys indexed by version.
// The current version must be present in the map.
func NewKeyring(keys map[uint8][]byte, current uint8) (*Keyring, error) {
	if len(keys) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "keyring requires at least one key")
	}
	aeads := make(map[uint8]cipher.AEAD, len(keys))
	for version, key := range keys {
		if len(key) != KeySize {
			return nil, dErrors.New(dErrors.CodeInvalidInput,
				fmt.Sprintf("key version %d is %d bytes, want %d", version, len(key), KeySize))
		}
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create cipher")
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create AEAD")
		}
		aeads[version] = aead
	}
	if _, ok := aeads[current]; !ok {
		return nil, dErrors.New(dErrors.CodeKeyNotFound,
			fmt.Sprintf("current key version %d not in keyring", current))
	}
	return &Keyring{current: current, aeads: aeads}, nil
}

// CurrentVersion returns the version used for new encryptions.
func (k *Keyring) CurrentVersion() uint8 {
	return k.current
}

// Blob is an encrypted record: the key version that sealed it, the nonce,
// and the GCM ciphertext (which includes the auth tag).
type Blob struct {
	Version    uint8
	Nonce      []byte
	Ciphertext []byte
}

// Encrypt seals plaintext under the current key with a fresh random nonce.
func (k *Keyring) Encrypt(plaintext []byte) (*Blob, error) {
	aead := k.aeads[k.current]
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate nonce")
	}
	return &Blob{
		Version:    k.current,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// Decrypt opens a blob with the key version recorded in it. Any tampering
// with the nonce or ciphertext fails GCM authentication and returns
// CodeIntegrityFailure without producing partial plaintext.
func (k *Keyring) Decrypt(blob *Blob) ([]byte, error) {
	aead, ok := k.aeads[blob.Version]
	if !ok {
		return nil, dErrors.New(dErrors.CodeKeyNotFound,
			fmt.Sprintf("no key for version %d", blob.Version))
	}
	if len(blob.Nonce) != aead.NonceSize() {
		return nil, dErrors.New(dErrors.CodeIntegrityFailure, "invalid nonce length")
	}
	plaintext, err := aead.Open(nil, blob.Nonce, blob.Ciphertext, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeIntegrityFailure, "decrypt secret")
	}
	return plaintext, nil
}

// EncodeBlob serializes a blob as version || nonce || ciphertext.
// The nonce length is fixed by GCM so no length prefix is needed.
func EncodeBlob(blob *Blob) []byte {
	out := make([]byte, 0, 1+len(blob.Nonce)+len(blob.Ciphertext))
	out = append(out, blob.Version)
	out = append(out, blob.Nonce...)
	out = append(out, blob.Ciphertext...)
	return out
}

// gcmNonceSize is the standard GCM nonce length used by EncodeBlob.
const gcmNonceSize = 12

// DecodeBlob parses version || nonce || ciphertext. A record too short to
// hold a version, nonce, and GCM tag is rejected as corrupted.
func DecodeBlob(data []byte) (*Blob, error) {
	// 1 version byte, 12 nonce bytes, 16-byte GCM tag minimum.
	if len(data) < 1+gcmNonceSize+16 {
		return nil, dErrors.New(dErrors.CodeIntegrityFailure, "encrypted record too short")
	}
	return &Blob{
		Version:    data[0],
		Nonce:      data[1 : 1+gcmNonceSize],
		Ciphertext: data[1+gcmNonceSize:],
	}, nil
}

// EncryptString seals a string and returns the base64 wire form.
func (k *Keyring) EncryptString(plaintext string) (string, error) {
	blob, err := k.Encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(EncodeBlob(blob)), nil
}

// DecryptString reverses EncryptString.
func (k *Keyring) DecryptString(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeIntegrityFailure, "decode encrypted record")
	}
	blob, err := DecodeBlob(data)
	if err != nil {
		return "", err
	}
	plaintext, err := k.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}
