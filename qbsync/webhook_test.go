package qbsync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
)

func signWebhookBody(token string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(token))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Setenv("QBO_WEBHOOK_VERIFIER_TOKEN", "verifier-secret")
	body := []byte(`{"eventNotifications":[]}`)

	if !verifyWebhookSignature(body, signWebhookBody("verifier-secret", body)) {
		t.Fatal("a correctly signed body must verify")
	}
	if verifyWebhookSignature(body, signWebhookBody("wrong-secret", body)) {
		t.Fatal("a signature under a different token must not verify")
	}
	if verifyWebhookSignature([]byte("tampered"), signWebhookBody("verifier-secret", body)) {
		t.Fatal("a tampered body must not verify")
	}
	if verifyWebhookSignature(body, "") {
		t.Fatal("a missing signature must not verify")
	}
}

func TestVerifyWebhookSignatureRequiresConfiguredToken(t *testing.T) {
	t.Setenv("QBO_WEBHOOK_VERIFIER_TOKEN", "")
	body := []byte(`{"eventNotifications":[]}`)

	// Without a verifier token there is nothing to check against; accepting
	// anything would turn the endpoint into an open trigger.
	if verifyWebhookSignature(body, signWebhookBody("anything", body)) {
		t.Fatal("an unconfigured verifier token must reject all requests")
	}
}
