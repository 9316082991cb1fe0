package ingest

import (
	"context"
	"testing"
	"time"
)

func ps(v int64) *int64 { return &v }

func TestMapBatchDerivesWhitenedBytesWhenPresent(t *testing.T) {
	now := time.Now()
	raws := []RawEvent{
		{SequenceNumber: 1, TDCTimestampPS: ps(5_000_000), RPiTimestampUS: ps(7)},
		{SequenceNumber: 2},
	}
	events := MapBatch(context.Background(), "batch-1", now, raws)
	if len(events) != 2 {
		t.Fatalf("expected 2 mapped events, got %d", len(events))
	}
	if events[0].HWTimestampNS != 5000 {
		t.Errorf("expected hw_timestamp_ns 5000, got %d", events[0].HWTimestampNS)
	}
	if len(events[0].Whitened) != 8 {
		t.Errorf("expected 8 whitened bytes, got %d", len(events[0].Whitened))
	}
	if events[1].HWTimestampNS != 0 || events[1].Whitened != nil {
		t.Errorf("expected no whitening without timestamp pair, got hw=%d whitened=%v", events[1].HWTimestampNS, events[1].Whitened)
	}
	for _, e := range events {
		if !e.ServerReceived.Equal(now) {
			t.Errorf("expected ServerReceived %v, got %v", now, e.ServerReceived)
		}
		if e.BatchID != "batch-1" {
			t.Errorf("expected batch id propagated, got %q", e.BatchID)
		}
	}
}

func TestMapBatchUsesExplicitHWTimestampWhenPairAbsent(t *testing.T) {
	now := time.Now()
	quality := 0.9
	raws := []RawEvent{
		{SequenceNumber: 3, HWTimestampNS: 42_000, QualityScore: &quality},
	}
	events := MapBatch(context.Background(), "batch-2", now, raws)
	if len(events) != 1 {
		t.Fatalf("expected 1 mapped event, got %d", len(events))
	}
	if events[0].HWTimestampNS != 42_000 {
		t.Errorf("expected explicit hw_timestamp_ns 42000 to survive mapping, got %d", events[0].HWTimestampNS)
	}
	if events[0].Whitened != nil {
		t.Errorf("expected no whitening without a tdc/rpi pair, got %v", events[0].Whitened)
	}
	if events[0].QualityScore == nil || *events[0].QualityScore != quality {
		t.Errorf("expected quality_score to be copied through, got %v", events[0].QualityScore)
	}
}

func TestValidateBatchRejectsEmpty(t *testing.T) {
	if err := ValidateBatch(nil); err == nil {
		t.Fatal("expected error for empty batch")
	}
	if err := ValidateBatch([]RawEvent{{}}); err != nil {
		t.Fatalf("expected non-empty batch to pass, got %v", err)
	}
}
