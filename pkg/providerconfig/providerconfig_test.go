package providerconfig

import (
	"testing"

	"github.com/wisbric/lotsync/pkg/provideradapter"
)

func TestEncodeDecodeCredentials(t *testing.T) {
	creds := provideradapter.Credentials{APIKey: "key123", APISecret: "secret456"}

	raw := encodeCredentials(creds)
	got := decodeCredentials(raw)

	if got != creds {
		t.Errorf("decodeCredentials(encodeCredentials(%+v)) = %+v", creds, got)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	s := &Store{key: DeriveKey("a-test-secret-that-is-long-enough")}

	plaintext := encodeCredentials(provideradapter.Credentials{APIKey: "abc", APISecret: "xyz"})

	cipher, err := s.encrypt(plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	decrypted, err := s.decrypt(cipher)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}

	if string(decrypted) != string(plaintext) {
		t.Errorf("decrypt(encrypt(x)) = %q, want %q", decrypted, plaintext)
	}
}

func TestDecrypt_RejectsShortCiphertext(t *testing.T) {
	s := &Store{key: DeriveKey("another-test-secret-value")}
	if _, err := s.decrypt([]byte("short")); err == nil {
		t.Fatal("expected error for too-short ciphertext")
	}
}
