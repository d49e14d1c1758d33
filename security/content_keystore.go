package security

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goliatone/go-consent/core"
	"golang.org/x/crypto/hkdf"
)

const (
	// ContentKeyInfo is the HKDF info string binding derived keys to content payloads.
	ContentKeyInfo = "consent.content.v1"

	contentSaltSize     = 16
	contentNonceSize    = 12
	contentKeySize      = 32
	contentSecretSize   = 32
	contentHeaderLength = 2
)

var ErrNoContentKeys = errors.New("security: content key store is empty")

// ContentKeyStore holds the provider private keys able to open encrypted file
// content. A payload is base64 of:
//
//	uint16 wrapped length | RSA-OAEP-SHA256(secret) | salt(16) | nonce(12) | AES-256-GCM(plaintext)
//
// The AES key is HKDF-SHA256(secret, salt, ContentKeyInfo). Every loaded key is
// tried in insertion order.
type ContentKeyStore struct {
	mu   sync.RWMutex
	keys []contentKey
}

type contentKey struct {
	id  string
	key *rsa.PrivateKey
}

func NewContentKeyStore() *ContentKeyStore {
	return &ContentKeyStore{}
}

func (s *ContentKeyStore) Add(id string, key *rsa.PrivateKey) error {
	if s == nil {
		return fmt.Errorf("security: content key store is nil")
	}
	if key == nil {
		return fmt.Errorf("security: private key is required")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("security: key id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.keys {
		if existing.id == id {
			return fmt.Errorf("security: key %q already loaded", id)
		}
	}
	s.keys = append(s.keys, contentKey{id: id, key: key})
	return nil
}

// AddPEM loads a PKCS#1 or PKCS#8 encoded RSA private key.
func (s *ContentKeyStore) AddPEM(id string, data []byte) error {
	key, err := ParseRSAPrivateKeyPEM(data)
	if err != nil {
		return err
	}
	return s.Add(id, key)
}

func (s *ContentKeyStore) KeyIDs() []string {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.keys))
	for _, key := range s.keys {
		ids = append(ids, key.id)
	}
	return ids
}

func (s *ContentKeyStore) Ready() bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys) > 0
}

func (s *ContentKeyStore) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if s == nil {
		return nil, ErrNoContentKeys
	}
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	payload, err := parseContentPayload(ciphertext)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	keys := append([]contentKey(nil), s.keys...)
	s.mu.RUnlock()
	if len(keys) == 0 {
		return nil, ErrNoContentKeys
	}

	var lastErr error
	for _, candidate := range keys {
		secret, err := rsa.DecryptOAEP(sha256.New(), nil, candidate.key, payload.wrapped, nil)
		if err != nil {
			lastErr = fmt.Errorf("security: unwrap with key %q: %w", candidate.id, err)
			continue
		}
		aesKey, err := deriveContentKey(secret, payload.salt)
		if err != nil {
			return nil, err
		}
		return openGCM(aesKey, payload.nonce, payload.sealed, nil)
	}
	return nil, lastErr
}

// SealContent produces a payload that ContentKeyStore.Decrypt opens with the
// matching private key.
func SealContent(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if pub == nil {
		return nil, fmt.Errorf("security: public key is required")
	}
	secret := make([]byte, contentSecretSize)
	if _, err := io.ReadFull(rand.Reader, secret); err != nil {
		return nil, fmt.Errorf("security: secret generation failed: %w", err)
	}
	salt := make([]byte, contentSaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("security: salt generation failed: %w", err)
	}
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, secret, nil)
	if err != nil {
		return nil, fmt.Errorf("security: wrap secret: %w", err)
	}
	aesKey, err := deriveContentKey(secret, salt)
	if err != nil {
		return nil, err
	}
	nonce, sealed, err := sealGCM(aesKey, plaintext, nil)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, 0, contentHeaderLength+len(wrapped)+len(salt)+len(nonce)+len(sealed))
	raw = binary.BigEndian.AppendUint16(raw, uint16(len(wrapped)))
	raw = append(raw, wrapped...)
	raw = append(raw, salt...)
	raw = append(raw, nonce...)
	raw = append(raw, sealed...)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out, nil
}

func ParseRSAPrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("security: no PEM block found")
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("security: parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("security: private key is not RSA")
	}
	return key, nil
}

type contentPayload struct {
	wrapped []byte
	salt    []byte
	nonce   []byte
	sealed  []byte
}

func parseContentPayload(ciphertext []byte) (contentPayload, error) {
	trimmed := strings.TrimSpace(string(ciphertext))
	if trimmed == "" {
		return contentPayload{}, fmt.Errorf("security: content ciphertext is required")
	}
	raw, err := base64.StdEncoding.DecodeString(trimmed)
	if err != nil {
		return contentPayload{}, fmt.Errorf("security: decode content payload: %w", err)
	}
	if len(raw) < contentHeaderLength {
		return contentPayload{}, fmt.Errorf("security: content payload too short")
	}
	wrappedLen := int(binary.BigEndian.Uint16(raw[:contentHeaderLength]))
	rest := raw[contentHeaderLength:]
	if wrappedLen == 0 || len(rest) < wrappedLen+contentSaltSize+contentNonceSize {
		return contentPayload{}, fmt.Errorf("security: content payload truncated")
	}
	return contentPayload{
		wrapped: rest[:wrappedLen],
		salt:    rest[wrappedLen : wrappedLen+contentSaltSize],
		nonce:   rest[wrappedLen+contentSaltSize : wrappedLen+contentSaltSize+contentNonceSize],
		sealed:  rest[wrappedLen+contentSaltSize+contentNonceSize:],
	}, nil
}

func deriveContentKey(secret []byte, salt []byte) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, salt, []byte(ContentKeyInfo))
	key := make([]byte, contentKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("security: derive content key: %w", err)
	}
	return key, nil
}

var (
	_ core.ContentDecrypter  = (*ContentKeyStore)(nil)
	_ core.ReadinessReporter = (*ContentKeyStore)(nil)
)
