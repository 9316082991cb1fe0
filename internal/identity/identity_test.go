package identity

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/oauth2"
)

type failingTokenSource struct{ calls int }

func (f *failingTokenSource) Token() (*oauth2.Token, error) {
	f.calls++
	return nil, errors.New("upstream unreachable")
}

func TestServiceTokenSourceOpensBreakerAfterThreshold(t *testing.T) {
	fake := &failingTokenSource{}
	s := &ServiceTokenSource{source: fake}

	for i := 0; i < breakerThreshold; i++ {
		if _, err := s.Token(context.Background()); err == nil {
			t.Fatalf("call %d: expected error", i)
		}
	}
	if fake.calls != breakerThreshold {
		t.Fatalf("expected %d underlying calls before breaker opens, got %d", breakerThreshold, fake.calls)
	}

	// Breaker now open; a further call must fail without reaching the
	// underlying source.
	if _, err := s.Token(context.Background()); err == nil {
		t.Fatal("expected breaker-open error")
	}
	if fake.calls != breakerThreshold {
		t.Fatalf("expected no additional underlying calls while breaker open, got %d", fake.calls)
	}
}

func TestResolveBearerPrefersCallerToken(t *testing.T) {
	got, err := ResolveBearer(context.Background(), "caller-tok", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "caller-tok" {
		t.Errorf("expected caller-tok, got %q", got)
	}
}

func TestResolveBearerFailsWithoutCallerOrServiceSource(t *testing.T) {
	if _, err := ResolveBearer(context.Background(), "", nil); err == nil {
		t.Fatal("expected AuthUnavailable error")
	}
}

func TestPrincipalHasRole(t *testing.T) {
	p := Principal{Name: "gw-1", Roles: []string{"GATEWAY"}}
	if !p.HasRole("GATEWAY") {
		t.Error("expected GATEWAY role present")
	}
	if p.HasRole("ADMIN") {
		t.Error("expected ADMIN role absent")
	}
}
