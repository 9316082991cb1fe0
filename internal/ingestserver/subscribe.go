package ingestserver

import (
	"fmt"

	"go.chromium.org/luci/common/logging"

	"entropysvc/internal/entropypb"
	"entropysvc/internal/identity"
)

// SubscribeBatches implements spec §4.1: a server-to-client stream of
// post-commit batches, requiring USER or ADMIN (spec §6).
func (s *Server) SubscribeBatches(req *entropypb.SubscribeRequest, stream entropypb.EntropyIngest_SubscribeBatchesServer) error {
	ctx := stream.Context()

	principal, err := s.verifier.VerifyInbound(ctx, identity.ExtractInboundToken(ctx))
	if err != nil {
		return err
	}
	if !principal.HasRole("USER") && !principal.HasRole("ADMIN") {
		return fmt.Errorf("principal %s lacks USER or ADMIN capability", principal.Name)
	}

	sessionID := fmt.Sprintf("%s-%p", principal.Name, stream)
	sub := s.addSubscriber(sessionID)
	defer s.removeSubscriber(sessionID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch := <-sub.ch:
			if err := stream.Send(batch); err != nil {
				logging.Warningf(ctx, "ingestserver: subscriber %s send failed, removing: %v", sessionID, err)
				return err
			}
		}
	}
}
