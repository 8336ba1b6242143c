// Package envelope provides authenticated symmetric encryption for secrets
// persisted outside the session, such as identity-provider tokens.
//
// Payload format (base64, standard alphabet):
//
//	nonce (12 bytes) || GCM tag (16 bytes) || ciphertext
//
// The decrypting side needs no metadata beyond the key. Any malformed,
// truncated or forged payload fails with ErrIntegrity and no plaintext.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
)

const (
	// KeySize is the required key length (AES-256).
	KeySize = 32

	// NonceSize is the GCM standard nonce length.
	NonceSize = 12

	// TagSize is the GCM authentication tag length.
	TagSize = 16
)

// strictEncoding accepts exactly one text form per payload.
var strictEncoding = base64.StdEncoding.Strict()

var (
	ErrInvalidKey  = errors.New("envelope: key must decode to exactly 32 bytes")
	ErrEmptyInput  = errors.New("envelope: empty input")
	ErrIntegrity   = errors.New("envelope: payload failed integrity check")
	ErrKeyNotFound = errors.New("envelope: no key configured")
)

// ParseKey interprets a configured key string as base64, then hex, then raw
// UTF-8 bytes. The first interpretation yielding exactly KeySize bytes wins.
func ParseKey(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrKeyNotFound
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if b, err := hex.DecodeString(s); err == nil && len(b) == KeySize {
		return b, nil
	}
	if b := []byte(s); len(b) == KeySize {
		return b, nil
	}
	return nil, ErrInvalidKey
}

// Sealer encrypts and decrypts envelope payloads with one key.
// It is safe for concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// New creates a Sealer from a raw 32-byte key.
func New(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKey
	}
	keyCopy := make([]byte, KeySize)
	copy(keyCopy, key)

	block, err := aes.NewCipher(keyCopy)
	if err != nil {
		return nil, fmt.Errorf("envelope: creating aes cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("envelope: creating gcm: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (s *Sealer) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyInput
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("envelope: generating nonce: %w", err)
	}

	// Seal returns ciphertext||tag; the wire format carries the tag first.
	sealed := s.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	out := make([]byte, 0, NonceSize+TagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a payload produced by Encrypt.
func (s *Sealer) Decrypt(payload string) (string, error) {
	if payload == "" {
		return "", ErrEmptyInput
	}

	// Strict decoding rejects non-zero padding bits; line breaks are still
	// skipped by the decoder, so they are refused here.
	if strings.ContainsAny(payload, "\r\n") {
		return "", fmt.Errorf("%w: line break in payload", ErrIntegrity)
	}
	raw, err := strictEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: decoding: %w", ErrIntegrity, err)
	}
	if len(raw) <= NonceSize+TagSize {
		return "", fmt.Errorf("%w: payload too short", ErrIntegrity)
	}

	nonce := raw[:NonceSize]
	tag := raw[NonceSize : NonceSize+TagSize]
	ct := raw[NonceSize+TagSize:]

	sealed := make([]byte, 0, len(ct)+TagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIntegrity, err)
	}
	return string(plaintext), nil
}

// EncryptJSON marshals v and encrypts the result.
func (s *Sealer) EncryptJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("envelope: marshalling: %w", err)
	}
	return s.Encrypt(string(data))
}

// DecryptJSON decrypts payload and unmarshals it into v.
func (s *Sealer) DecryptJSON(payload string, v any) error {
	plaintext, err := s.Decrypt(payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(plaintext), v); err != nil {
		return fmt.Errorf("envelope: unmarshalling: %w", err)
	}
	return nil
}

// KeySource resolves the configured key into a Sealer exactly once.
// The result (or the parse error) is cached for the life of the KeySource;
// concurrent callers observe the same value.
type KeySource struct {
	raw string

	once   sync.Once
	sealer *Sealer
	err    error
}

// NewKeySource creates a KeySource for the configured key string.
// Parsing is deferred until the first call to Sealer.
func NewKeySource(raw string) *KeySource {
	return &KeySource{raw: raw}
}

// Sealer returns the process Sealer, initializing it on first use.
func (k *KeySource) Sealer() (*Sealer, error) {
	k.once.Do(func() {
		key, err := ParseKey(k.raw)
		if err != nil {
			k.err = err
			return
		}
		k.sealer, k.err = New(key)
	})
	return k.sealer, k.err
}

// Encrypt is a shorthand for Sealer().Encrypt.
func (k *KeySource) Encrypt(plaintext string) (string, error) {
	s, err := k.Sealer()
	if err != nil {
		return "", err
	}
	return s.Encrypt(plaintext)
}

// Decrypt is a shorthand for Sealer().Decrypt.
func (k *KeySource) Decrypt(payload string) (string, error) {
	s, err := k.Sealer()
	if err != nil {
		return "", err
	}
	return s.Decrypt(payload)
}
