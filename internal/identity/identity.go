// Package identity is the collaborator C5 and C7 consume for inbound
// principal verification and outbound service-token minting (spec §6
// "Identity collaborator contract"), including the token-fetch circuit
// breaker (spec §5). Grounded on the oauth2 jwt.Config wiring in
// chromeperf/pinpoint/server/server.go (google.DefaultClient /
// jwt.Config.TokenSource for service-to-service auth).
package identity

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"entropysvc/internal/entropyerr"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

// Principal is the verified caller identity (spec §6).
type Principal struct {
	Name  string
	Roles []string
}

// HasRole reports whether p carries role (case-sensitive, matching the
// capability strings in spec §4.1/§6: GATEWAY, USER, ADMIN).
func (p Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Verifier authenticates inbound tokens (spec §6 verify_inbound).
type Verifier interface {
	VerifyInbound(ctx context.Context, token string) (Principal, error)
}

// breakerThreshold and breakerCooldown implement spec §5's circuit
// breaker: "after 5 failures the breaker opens... for 60s, then one
// trial is allowed."
const (
	breakerThreshold = 5
	breakerCooldown  = 60 * time.Second
)

// TokenFetchTimeout bounds a single get_token call (spec §6 operator
// knobs: "token-fetch timeout").
const TokenFetchTimeout = 10 * time.Second

// ServiceTokenSource mints bearer tokens for outbound validator RPCs
// when no caller_token was propagated (spec §4.6 "Outbound auth"), with
// a circuit breaker around the underlying oauth2 token source.
type ServiceTokenSource struct {
	source oauth2.TokenSource

	mu              sync.Mutex
	consecutiveFail int
	openUntil       time.Time
}

// NewServiceTokenSource builds a breaker-wrapped token source from a
// JWT service-account config (google.JWTConfigFromJSON), mirroring the
// teacher's own service-to-service auth pattern.
func NewServiceTokenSource(ctx context.Context, jsonKey []byte, scopes ...string) (*ServiceTokenSource, error) {
	cfg, err := google.JWTConfigFromJSON(jsonKey, scopes...)
	if err != nil {
		return nil, errors.Annotate(err, "parsing service account key").Err()
	}
	return &ServiceTokenSource{source: cfg.TokenSource(ctx)}, nil
}

// Token fetches a bearer string, honoring the breaker state (spec §5).
func (s *ServiceTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if !s.openUntil.IsZero() && time.Now().Before(s.openUntil) {
		s.mu.Unlock()
		return "", entropyerr.NoAuth("token breaker open until %s", s.openUntil.Format(time.RFC3339))
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, TokenFetchTimeout)
	defer cancel()

	type fetched struct {
		tok *oauth2.Token
		err error
	}
	done := make(chan fetched, 1)
	go func() {
		t, e := s.source.Token()
		done <- fetched{t, e}
	}()
	var f fetched
	select {
	case f = <-done:
	case <-ctx.Done():
		f.err = ctx.Err()
	}
	tok, err := f.tok, f.err
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.consecutiveFail++
		if s.consecutiveFail >= breakerThreshold {
			s.openUntil = time.Now().Add(breakerCooldown)
			logging.Warningf(ctx, "identity: token breaker opened after %d consecutive failures", s.consecutiveFail)
		}
		return "", entropyerr.NoAuth("fetching service token: %v", err)
	}
	// A successful fetch resets the counter and any open breaker (spec
	// §5: "Successful fetch resets the counter"), including the one
	// trial allowed after cooldown.
	s.consecutiveFail = 0
	s.openUntil = time.Time{}
	return tok.AccessToken, nil
}

// ResolveBearer implements spec §4.6's "token propagation precedence":
// a caller-supplied token always wins; otherwise a service token is
// minted, and failure to do so fails the job with AuthUnavailable.
func ResolveBearer(ctx context.Context, callerToken string, svc *ServiceTokenSource) (string, error) {
	if callerToken != "" {
		return callerToken, nil
	}
	if svc == nil {
		return "", entropyerr.NoAuth("no caller token and no service token source configured")
	}
	return svc.Token(ctx)
}
