package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerify_EmptySecretSkipsVerification(t *testing.T) {
	if !verify("", "tenant-a", []byte(`{"eventType":"x"}`), "not-a-valid-signature") {
		t.Error("verify() with empty deployment secret should always pass")
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	body := []byte(`{"eventType":"lot.updated","resourceId":"abc"}`)
	secret := "deployment-secret"
	tenantToken := "acme"

	mac := hmac.New(sha256.New, tenantKey(secret, tenantToken))
	mac.Write(body)
	sig := hex.EncodeToString(mac.Sum(nil))

	if !verify(secret, tenantToken, body, sig) {
		t.Error("verify() should accept a correctly signed body")
	}
}

func TestVerify_RejectsWrongSignature(t *testing.T) {
	body := []byte(`{"eventType":"lot.updated","resourceId":"abc"}`)
	if verify("deployment-secret", "acme", body, hex.EncodeToString([]byte("wrong"))) {
		t.Error("verify() should reject a mismatched signature")
	}
}

func TestVerify_RejectsMalformedHex(t *testing.T) {
	if verify("deployment-secret", "acme", []byte("body"), "not-hex!!") {
		t.Error("verify() should reject a non-hex signature")
	}
}
