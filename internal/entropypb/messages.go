// Package entropypb defines the inbound/outbound message shapes for the
// ingestion server's bidirectional-streaming surface (spec §6) and a
// hand-authored grpc.ServiceDesc for it. There is no .proto source in
// this exercise (the wire format is explicitly out of scope, spec §1);
// the RPC *shape* still rides on google.golang.org/grpc the way
// chromeperf/pinpoint/server/server.go wires grpc.NewServer(),
// health.NewServer() and grpc_health_v1 — only the byte encoding is
// substituted, via the JSON codec in codec.go, since these message types
// don't implement proto.Message.
package entropypb

import "time"

// Event is one gateway-reported decay reading (spec §6 "Event message").
type Event struct {
	HWTimestampNS  int64    `json:"hw_timestamp_ns"`
	SequenceNumber int64    `json:"sequence_number"`
	Channel        *int32   `json:"channel,omitempty"`
	RPiTimestampUS *int64   `json:"rpi_timestamp_us,omitempty"`
	TDCTimestampPS *int64   `json:"tdc_timestamp_ps,omitempty"`
	SourceAddress  string   `json:"source_address,omitempty"`
	QualityScore   *float64 `json:"quality_score,omitempty"`
	BatchID        string   `json:"batch_id,omitempty"`
}

// EdgeMetrics carries gateway-side self-reported health, forwarded but
// not validated by the core (spec §4.1 step 3).
type EdgeMetrics struct {
	SelfTestPassed bool              `json:"self_test_passed"`
	Extra          map[string]string `json:"extra,omitempty"`
}

// Batch is one gateway-assembled collection of events (spec GLOSSARY).
type Batch struct {
	BatchID       string       `json:"batch_id"`
	BatchSequence int64        `json:"batch_sequence"`
	Events        []Event      `json:"events"`
	EdgeMetrics   *EdgeMetrics `json:"edge_metrics,omitempty"`
	SentAt        time.Time    `json:"sent_at"`
}

// Ack is the ingestion server's response to one Batch (spec §6).
type Ack struct {
	BatchSequence       int64  `json:"batch_sequence"`
	Success             bool   `json:"success"`
	ReceivedCount       int    `json:"received_count"`
	PersistedCount      int    `json:"persisted_count"`
	ProcessingTimeMS    int64  `json:"processing_time_ms"`
	Backpressure        bool   `json:"backpressure"`
	BackpressureReason  string `json:"backpressure_reason,omitempty"`
	Error               string `json:"error,omitempty"`
	EdgeMetricsReceived bool   `json:"edge_metrics_received,omitempty"`
}

// Hello, Ping, Pong, ConfigUpdate and HealthReport are the Control
// message set (spec §6).
type Hello struct {
	GatewayID string `json:"gateway_id"`
}

type Ping struct {
	SentAt time.Time `json:"sent_at"`
}

type Pong struct {
	SentAt time.Time `json:"sent_at"`
}

type ConfigUpdate struct {
	ExpectedRateHz float64 `json:"expected_rate_hz"`
}

type HealthReport struct {
	GatewayID      string  `json:"gateway_id"`
	UptimeSeconds  float64 `json:"uptime_seconds"`
	LastErrorCount int64   `json:"last_error_count"`
}

// ControlRequest/ControlResponse envelope the Control message set's
// oneof-like shape (spec §6 Control: bidi, "Hello, Ping, Pong,
// ConfigUpdate, HealthReport"); exactly one field is set per message.
type ControlRequest struct {
	Hello        *Hello        `json:"hello,omitempty"`
	Ping         *Ping         `json:"ping,omitempty"`
	HealthReport *HealthReport `json:"health_report,omitempty"`
}

type ControlResponse struct {
	ConfigUpdate *ConfigUpdate `json:"config_update,omitempty"`
	Pong         *Pong         `json:"pong,omitempty"`
	Ok           bool          `json:"ok,omitempty"`
}
