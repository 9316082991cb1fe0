package ingestserver

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.chromium.org/luci/common/logging"

	"entropysvc/internal/entropypb"
	"entropysvc/internal/identity"
	"entropysvc/internal/ingest"
)

// StreamEvents implements spec §4.1's per-batch contract.
func (s *Server) StreamEvents(stream entropypb.EntropyIngest_StreamEventsServer) error {
	ctx := stream.Context()

	principal, err := s.verifier.VerifyInbound(ctx, identity.ExtractInboundToken(ctx))
	if err != nil {
		return err
	}
	if !principal.HasRole("GATEWAY") {
		return fmt.Errorf("principal %s lacks GATEWAY capability", principal.Name)
	}
	logging.Debugf(ctx, "ingestserver: gateway stream opened for %s", principal.Name)

	for {
		batch, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		ack := s.handleBatch(ctx, batch)
		if err := stream.Send(ack); err != nil {
			return err
		}
	}
}

func (s *Server) handleBatch(ctx context.Context, batch *entropypb.Batch) *entropypb.Ack {
	start := time.Now()
	depth, backpressure := s.enter()
	defer s.leave()

	raws := toRawEvents(batch)
	if err := ingest.ValidateBatch(raws); err != nil {
		return &entropypb.Ack{
			BatchSequence: batch.BatchSequence,
			Success:       false,
			Error:         err.Error(),
		}
	}

	mapped := ingest.MapBatch(ctx, batch.BatchID, time.Now(), raws)

	result, err := s.pipeline.Persist(ctx, mapped, time.Now())
	ack := &entropypb.Ack{
		BatchSequence:    batch.BatchSequence,
		Success:          err == nil,
		ReceivedCount:    result.ReceivedCount,
		PersistedCount:   result.PersistedCount,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
		Backpressure:     backpressure,
	}
	if backpressure {
		ack.BackpressureReason = fmt.Sprintf("queue depth %d exceeds %.0f%% of capacity %d", depth, backpressureFraction*100, s.queueCap)
	}
	if err != nil {
		ack.Error = err.Error()
		logging.Warningf(ctx, "ingestserver: persisting batch %d: %v", batch.BatchSequence, err)
		return ack
	}
	if batch.EdgeMetrics != nil {
		ack.EdgeMetricsReceived = true
		logging.Debugf(ctx, "ingestserver: edge self-test passed=%v", batch.EdgeMetrics.SelfTestPassed)
	}

	// Fan-out happens only after the persistence transaction commits
	// (spec §5 "Ordering guarantees": "observers never see uncommitted
	// data").
	s.fanOut(batch)
	return ack
}

func toRawEvents(batch *entropypb.Batch) []ingest.RawEvent {
	out := make([]ingest.RawEvent, 0, len(batch.Events))
	for _, e := range batch.Events {
		out = append(out, ingest.RawEvent{
			BatchID:        batch.BatchID,
			HWTimestampNS:  e.HWTimestampNS,
			RPiTimestampUS: e.RPiTimestampUS,
			TDCTimestampPS: e.TDCTimestampPS,
			SequenceNumber: e.SequenceNumber,
			Channel:        e.Channel,
			SourceAddress:  e.SourceAddress,
			QualityScore:   e.QualityScore,
		})
	}
	return out
}
