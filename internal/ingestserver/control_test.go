package ingestserver

import (
	"context"
	"testing"

	"entropysvc/internal/entropypb"
)

func TestHandleControlHelloReturnsConfigUpdate(t *testing.T) {
	s := newTestServer(10)
	resp := s.handleControl(context.Background(), &entropypb.ControlRequest{Hello: &entropypb.Hello{GatewayID: "gw-1"}})
	if resp.ConfigUpdate == nil {
		t.Fatal("expected ConfigUpdate in response")
	}
	if resp.ConfigUpdate.ExpectedRateHz != s.expectedRateHz {
		t.Errorf("expected ExpectedRateHz %v, got %v", s.expectedRateHz, resp.ConfigUpdate.ExpectedRateHz)
	}
}

func TestHandleControlPingReturnsPong(t *testing.T) {
	s := newTestServer(10)
	resp := s.handleControl(context.Background(), &entropypb.ControlRequest{Ping: &entropypb.Ping{}})
	if resp.Pong == nil {
		t.Fatal("expected Pong in response")
	}
	if resp.Pong.SentAt.IsZero() {
		t.Error("expected Pong.SentAt to be set")
	}
}

func TestHandleControlHealthReportAcknowledges(t *testing.T) {
	s := newTestServer(10)
	resp := s.handleControl(context.Background(), &entropypb.ControlRequest{
		HealthReport: &entropypb.HealthReport{GatewayID: "gw-1", UptimeSeconds: 120, LastErrorCount: 0},
	})
	if !resp.Ok {
		t.Error("expected Ok=true for health report")
	}
}

func TestHandleControlUnsetRequestReturnsNotOk(t *testing.T) {
	s := newTestServer(10)
	resp := s.handleControl(context.Background(), &entropypb.ControlRequest{})
	if resp.Ok {
		t.Error("expected Ok=false for an empty control request")
	}
}
