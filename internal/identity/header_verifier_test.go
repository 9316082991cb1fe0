package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"
)

func encodeUserInfo(t *testing.T, info userInfo) string {
	t.Helper()
	raw, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("marshal userInfo: %v", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func TestHeaderVerifierDecodesPrincipal(t *testing.T) {
	tok := encodeUserInfo(t, userInfo{Email: "alice@example.com", Roles: []string{"USER", "ADMIN"}})

	p, err := HeaderVerifier{}.VerifyInbound(context.Background(), tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name != "alice@example.com" {
		t.Errorf("expected name alice@example.com, got %s", p.Name)
	}
	if !p.HasRole("ADMIN") {
		t.Error("expected ADMIN role")
	}
}

func TestHeaderVerifierRejectsEmptyToken(t *testing.T) {
	if _, err := (HeaderVerifier{}).VerifyInbound(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestHeaderVerifierRejectsMissingEmail(t *testing.T) {
	tok := encodeUserInfo(t, userInfo{Roles: []string{"USER"}})
	if _, err := (HeaderVerifier{}).VerifyInbound(context.Background(), tok); err == nil {
		t.Fatal("expected error for missing email claim")
	}
}
