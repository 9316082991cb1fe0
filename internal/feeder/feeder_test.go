package feeder

import (
	"context"
	"errors"
	"testing"
)

func TestConcatCappedStopsAtCap(t *testing.T) {
	slices := [][]byte{
		{1, 2, 3, 4},
		{5, 6, 7, 8},
		{9, 9, 9, 9},
	}
	got := concatCapped(slices, 6)
	want := []byte{1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("expected %d bytes, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}

func TestConcatCappedEmptyInput(t *testing.T) {
	if got := concatCapped(nil, 512); got != nil {
		t.Errorf("expected nil for no input, got %v", got)
	}
}

type countingWriter struct {
	failures int
	calls    int
	written  []byte
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.calls++
	if w.calls <= w.failures {
		return 0, errors.New("device busy")
	}
	w.written = append(w.written, p...)
	return len(p), nil
}

func TestFeederRetriesUpToThreeTimes(t *testing.T) {
	w := &countingWriter{failures: 2}
	f := &Feeder{device: w, operational: 1}

	buf := []byte{1, 2, 3}
	err := retryWrite(context.Background(), f, buf)
	if err != nil {
		t.Fatalf("expected write to eventually succeed, got %v", err)
	}
	if w.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", w.calls)
	}
	if f.TotalBytesWritten() != int64(len(buf)) {
		t.Errorf("expected %d bytes written, got %d", len(buf), f.TotalBytesWritten())
	}
	if !f.Operational() {
		t.Error("expected feeder to report operational after eventual success")
	}
}

func TestFeederMarksNonOperationalAfterExhaustingRetries(t *testing.T) {
	w := &countingWriter{failures: 100}
	f := &Feeder{device: w, operational: 1}

	err := retryWrite(context.Background(), f, []byte{1})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if f.Operational() {
		t.Error("expected feeder to report non-operational after exhausting retries")
	}
}
