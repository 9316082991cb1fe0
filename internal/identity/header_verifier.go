package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"go.chromium.org/luci/common/errors"
	"google.golang.org/grpc/metadata"

	"entropysvc/internal/entropyerr"
)

// inboundCredentialHeader is the grpc metadata key an upstream ESP-style
// proxy attaches the authenticated userinfo blob under, mirroring
// chromeperf/pinpoint/server/server.go's endpointsHeader
// ("x-endpoint-api-userinfo").
const inboundCredentialHeader = "x-entropy-userinfo"

// ExtractInboundToken reads the upstream-authenticated credential out of
// the incoming gRPC metadata (spec §1: OIDC verification and role
// augmentation are external; this only reads their output), the way
// pinpointServer.getRequestingUserEmail reads endpointsHeader via
// metadata.FromIncomingContext.
func ExtractInboundToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get(inboundCredentialHeader)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// HeaderVerifier implements Verifier by decoding a base64-encoded JSON
// blob that an upstream Endpoint Service Proxy (or equivalent sidecar)
// has already authenticated and attached to the request, mirroring
// chromeperf/pinpoint/server/server.go's getRequestingUserEmail /
// x-endpoint-api-userinfo handling. OIDC verification itself stays an
// external collaborator (spec §1); this only trusts and decodes its
// output.
type HeaderVerifier struct{}

// userInfo is the decoded shape of the upstream auth header.
type userInfo struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// VerifyInbound decodes token as the base64url-encoded JSON userinfo
// blob and maps it onto a Principal. An empty or malformed token yields
// AuthUnavailable, matching spec §7's classification for missing
// credentials.
func (HeaderVerifier) VerifyInbound(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, entropyerr.NoAuth("no inbound credential attached to request")
	}
	decoded, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Principal{}, entropyerr.NoAuth("malformed inbound credential: %v", err)
	}
	var info userInfo
	if err := json.Unmarshal(decoded, &info); err != nil {
		return Principal{}, errors.Annotate(err, "decoding inbound credential").Tag(entropyerr.AuthUnavailable).Err()
	}
	if info.Email == "" {
		return Principal{}, entropyerr.NoAuth("inbound credential missing email claim")
	}
	return Principal{Name: info.Email, Roles: info.Roles}, nil
}
