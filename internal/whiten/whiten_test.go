package whiten

import (
	"bytes"
	"testing"
)

func TestFoldLengthPreservingAndDeterministic(t *testing.T) {
	a, b := int64(123456789), int64(987654321)
	out1 := Fold(a, b)
	out2 := Fold(a, b)
	if len(out1) != 8 {
		t.Fatalf("want 8 bytes, got %d", len(out1))
	}
	if !bytes.Equal(out1, out2) {
		t.Fatalf("Fold not deterministic: %x vs %x", out1, out2)
	}
}

func TestFoldSelfCancels(t *testing.T) {
	out := Fold(42, 42)
	for i, b := range out {
		if b != 0 {
			t.Fatalf("byte %d: want 0 when folding a value against itself, got %d", i, b)
		}
	}
}

func TestDeriveSkipsWhenTimestampMissing(t *testing.T) {
	ps := int64(5_000_000)
	hw, w := Derive(Event{TDCTimestampPS: &ps, RPiTimestampUS: nil})
	if hw != 0 || w != nil {
		t.Fatalf("want skipped whitening, got hw=%d w=%v", hw, w)
	}
}

func TestDeriveComputesHWFromPicoseconds(t *testing.T) {
	ps := int64(5_000_000)
	us := int64(5_000)
	hw, w := Derive(Event{TDCTimestampPS: &ps, RPiTimestampUS: &us})
	if hw != 5_000 {
		t.Fatalf("hw_timestamp_ns = ps/1000, want 5000, got %d", hw)
	}
	if len(w) != 8 {
		t.Fatalf("want 8-byte whitened slice, got %d", len(w))
	}
}
