package orchestrator

import (
	"bytes"
	"testing"

	"entropysvc/internal/model"
)

func TestExtractBitstreamPrefersWhitenedBytes(t *testing.T) {
	events := []model.Event{
		{HWTimestampNS: 1000, Whitened: []byte{1, 2, 3, 4, 5, 6, 7, 8}},
		{HWTimestampNS: 2000, Whitened: []byte{9, 9, 9, 9, 9, 9, 9, 9}},
	}
	got := ExtractBitstream(events)
	want := append([]byte{1, 2, 3, 4, 5, 6, 7, 8}, 9, 9, 9, 9, 9, 9, 9, 9)
	if !bytes.Equal(got, want) {
		t.Errorf("expected concatenated whitened bytes, got %v", got)
	}
}

func TestExtractBitstreamFallsBackToIntervalXOR(t *testing.T) {
	events := []model.Event{
		{HWTimestampNS: 1000},
		{HWTimestampNS: 2000},
		{HWTimestampNS: 4000},
		{HWTimestampNS: 7000},
	}
	got := ExtractBitstream(events)
	if len(got) == 0 {
		t.Fatal("expected non-empty fallback bitstream")
	}
	if len(got)%8 != 0 {
		t.Errorf("expected 8-byte-aligned output, got %d bytes", len(got))
	}
}

func TestExtractBitstreamEmptyWhenNoDeltas(t *testing.T) {
	events := []model.Event{{HWTimestampNS: 1000}}
	got := ExtractBitstream(events)
	if got != nil {
		t.Errorf("expected nil bitstream for a single event, got %v", got)
	}
}
