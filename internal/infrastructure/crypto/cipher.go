// Package crypto implements the deterministic field cipher used for
// encrypted CRM columns.
//
// Every field gets its own XChaCha20-Poly1305 key derived from the master key
// with HKDF. The nonce is a keyed BLAKE2b hash of the plaintext, so equal
// plaintexts of the same field encrypt to equal ciphertexts and can be
// searched by equality. Different fields never share ciphertext.
package crypto

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"advisorcrm/internal/domain"
)

// KeySize is the required master key length.
const KeySize = 32

const version = "v1"

var (
	// ErrMalformed is returned for ciphertexts that cannot be parsed.
	ErrMalformed = errors.New("malformed ciphertext")
	// ErrAuth is returned when a ciphertext fails authentication.
	ErrAuth = errors.New("ciphertext authentication failed")
)

// Compile-time check that FieldCipher implements domain.FieldCipher interface.
var _ domain.FieldCipher = (*FieldCipher)(nil)

type fieldKeys struct {
	aead     cipher.AEAD
	nonceKey []byte
}

// FieldCipher encrypts single field values. Safe for concurrent use.
type FieldCipher struct {
	master []byte
	keys   sync.Map // field -> *fieldKeys
}

// New creates a cipher from a 32-byte master key.
func New(master []byte) (*FieldCipher, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("master key must be %d bytes, got %d", KeySize, len(master))
	}
	return &FieldCipher{master: append([]byte(nil), master...)}, nil
}

// NewFromBase64 creates a cipher from a standard base64 encoded master key.
func NewFromBase64(s string) (*FieldCipher, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode master key: %w", err)
	}
	return New(key)
}

func (c *FieldCipher) keysFor(field string) (*fieldKeys, error) {
	if k, ok := c.keys.Load(field); ok {
		return k.(*fieldKeys), nil
	}

	r := hkdf.New(sha256.New, c.master, nil, []byte("advisorcrm field "+version+" "+field))
	material := make([]byte, chacha20poly1305.KeySize+blake2b.Size256)
	if _, err := io.ReadFull(r, material); err != nil {
		return nil, fmt.Errorf("derive field key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(material[:chacha20poly1305.KeySize])
	if err != nil {
		return nil, fmt.Errorf("create aead: %w", err)
	}

	k := &fieldKeys{aead: aead, nonceKey: material[chacha20poly1305.KeySize:]}
	actual, _ := c.keys.LoadOrStore(field, k)
	return actual.(*fieldKeys), nil
}

func (k *fieldKeys) nonce(plaintext []byte) ([]byte, error) {
	h, err := blake2b.New256(k.nonceKey)
	if err != nil {
		return nil, err
	}
	h.Write(plaintext)
	return h.Sum(nil)[:chacha20poly1305.NonceSizeX], nil
}

// Encrypt returns "v1:" followed by the base64url encoded nonce and sealed
// plaintext. The field name is bound as additional data.
func (c *FieldCipher) Encrypt(field string, plaintext []byte) (string, error) {
	k, err := c.keysFor(field)
	if err != nil {
		return "", err
	}
	nonce, err := k.nonce(plaintext)
	if err != nil {
		return "", fmt.Errorf("derive nonce: %w", err)
	}
	out := k.aead.Seal(nonce, nonce, plaintext, []byte(field))
	return version + ":" + base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt reverses Encrypt for the same field.
func (c *FieldCipher) Decrypt(field, ciphertext string) ([]byte, error) {
	v, body, ok := strings.Cut(ciphertext, ":")
	if !ok || v != version {
		return nil, ErrMalformed
	}
	raw, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil || len(raw) < chacha20poly1305.NonceSizeX+chacha20poly1305.Overhead {
		return nil, ErrMalformed
	}

	k, err := c.keysFor(field)
	if err != nil {
		return nil, err
	}
	nonce, sealed := raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:]
	plain, err := k.aead.Open(nil, nonce, sealed, []byte(field))
	if err != nil {
		return nil, ErrAuth
	}
	return plain, nil
}
