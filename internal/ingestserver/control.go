package ingestserver

import (
	"context"
	"io"
	"time"

	"go.chromium.org/luci/common/logging"

	"entropysvc/internal/entropypb"
)

// Control implements spec §4.1's bidi control channel: Hello gets a
// ConfigUpdate, Ping gets a Pong, HealthReport is logged and
// acknowledged with Ok.
func (s *Server) Control(stream entropypb.EntropyIngest_ControlServer) error {
	ctx := stream.Context()
	for {
		req, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		resp := s.handleControl(ctx, req)
		if resp == nil {
			continue
		}
		if err := stream.Send(resp); err != nil {
			return err
		}
	}
}

func (s *Server) handleControl(ctx context.Context, req *entropypb.ControlRequest) *entropypb.ControlResponse {
	switch {
	case req.Hello != nil:
		return &entropypb.ControlResponse{ConfigUpdate: &entropypb.ConfigUpdate{ExpectedRateHz: s.expectedRateHz}}
	case req.Ping != nil:
		return &entropypb.ControlResponse{Pong: &entropypb.Pong{SentAt: time.Now()}}
	case req.HealthReport != nil:
		logging.Debugf(ctx, "ingestserver: health report from %s: uptime=%.0fs errors=%d",
			req.HealthReport.GatewayID, req.HealthReport.UptimeSeconds, req.HealthReport.LastErrorCount)
		return &entropypb.ControlResponse{Ok: true}
	default:
		return &entropypb.ControlResponse{Ok: false}
	}
}
