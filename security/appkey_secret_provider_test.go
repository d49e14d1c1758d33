package security

import (
	"bytes"
	"context"
	"testing"
)

func TestAppKeySecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("consent-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte("session-key-123")
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(encrypted, plaintext) {
		t.Fatalf("expected encrypted payload to differ from plaintext")
	}
	if !bytes.HasPrefix(encrypted, []byte(envelopePrefix)) {
		t.Fatalf("expected envelope prefix")
	}

	meta, err := ParseEnvelopeMetadata(encrypted)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "consent-v1" || meta.Version != 3 || meta.Algorithm != envelopeAlgorithm {
		t.Fatalf("unexpected metadata %+v", meta)
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}
}

func TestAppKeySecretProvider_RejectsMetadataMismatch(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("consent-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("consent-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected metadata mismatch error")
	}
}

func TestAppKeySecretProvider_RejectsForeignKeyAndMissingPrefix(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("key-a")
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	other, err := NewAppKeySecretProviderFromString("key-b")
	if err != nil {
		t.Fatalf("new other: %v", err)
	}
	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := other.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected authentication failure with a different key")
	}
	stripped := bytes.TrimPrefix(encrypted, []byte(envelopePrefix))
	if _, err := issuer.Decrypt(context.Background(), stripped); err == nil {
		t.Fatalf("expected missing prefix error")
	}
}

func TestNewAppKeySecretProvider_RequiresKeyMaterial(t *testing.T) {
	if _, err := NewAppKeySecretProvider([]byte("   ")); err == nil {
		t.Fatalf("expected key material error")
	}
	provider, err := NewAppKeySecretProviderFromString("k")
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	if provider.KeyID() != "app-key" || provider.Version() != 1 {
		t.Fatalf("unexpected defaults %q/%d", provider.KeyID(), provider.Version())
	}
	if _, err := provider.Encrypt(context.Background(), nil); err == nil {
		t.Fatalf("expected plaintext required error")
	}
}
