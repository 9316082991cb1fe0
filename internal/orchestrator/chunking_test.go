package orchestrator

import "testing"

func TestChunkSuite22SingleChunkWhenWithinLimit(t *testing.T) {
	cfg := DefaultConfig()
	bits := make([]byte, 500_000)
	chunks := ChunkSuite22(bits, cfg)
	if len(chunks) != 1 || len(chunks[0]) != 500_000 {
		t.Fatalf("expected one 500000-byte chunk, got %d chunks", len(chunks))
	}
}

func TestChunkSuite22SplitsAndRebalancesLastChunk(t *testing.T) {
	cfg := DefaultConfig() // MinBits22=1_000_000, MaxBytes22=1_250_000
	bits := make([]byte, 3_000_000)
	chunks := ChunkSuite22(bits, cfg)

	want := []int{1_250_000, 1_250_000, 500_000}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if len(c) != want[i] {
			t.Errorf("chunk %d: expected %d bytes, got %d", i, want[i], len(c))
		}
	}
	minBytes := (cfg.MinBits22 + 7) / 8
	if len(chunks[len(chunks)-1]) < minBytes {
		t.Errorf("last chunk %d bytes below floor %d", len(chunks[len(chunks)-1]), minBytes)
	}
}

func TestConfigValidateRejectsImpossibleSplit(t *testing.T) {
	cfg := Config{MinBits22: 10_000_000, MaxBytes22: 100, MaxBytes90B: 1000}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected InternalInvariant error")
	}
}

func TestChunkAssess90BTruncates(t *testing.T) {
	cfg := DefaultConfig()
	data := make([]byte, 2_000_000)
	got := ChunkAssess90B(data, cfg)
	if len(got) != cfg.MaxBytes90B {
		t.Errorf("expected truncation to %d bytes, got %d", cfg.MaxBytes90B, len(got))
	}
}
