package ingestserver

import (
	"testing"

	"entropysvc/internal/entropypb"
)

func newTestServer(queueCap int) *Server {
	return NewServer(nil, nil, queueCap, 20, DefaultExpectedRateHz)
}

func TestEnterLeaveTracksDepth(t *testing.T) {
	s := newTestServer(10)

	depth, bp := s.enter()
	if depth != 1 {
		t.Fatalf("expected depth 1, got %d", depth)
	}
	if bp {
		t.Fatal("expected no backpressure at depth 1 of 10")
	}

	// Push depth past 0.8*10 = 8.
	for i := 0; i < 7; i++ {
		s.enter()
	}
	depth, bp = s.enter() // depth now 9
	if depth != 9 {
		t.Fatalf("expected depth 9, got %d", depth)
	}
	if !bp {
		t.Fatal("expected backpressure at depth 9 of 10")
	}

	for i := 0; i < 9; i++ {
		s.leave()
	}
	depth, bp = s.enter()
	if depth != 1 || bp {
		t.Fatalf("expected depth back to 1 with no backpressure, got depth=%d bp=%v", depth, bp)
	}
}

func TestFanOutIsNonBlockingWhenSubscriberChannelFull(t *testing.T) {
	s := newTestServer(10)
	sub := s.addSubscriber("sess-1")

	batch1 := &entropypb.Batch{BatchSequence: 1}
	batch2 := &entropypb.Batch{BatchSequence: 2}

	s.fanOut(batch1) // fills the depth-1 channel
	done := make(chan struct{})
	go func() {
		s.fanOut(batch2) // must not block even though channel is full
		close(done)
	}()
	select {
	case <-done:
	default:
	}

	got := <-sub.ch
	if got.BatchSequence != 1 {
		t.Errorf("expected first batch delivered, got sequence %d", got.BatchSequence)
	}
}

func TestRemoveSubscriberStopsFanOut(t *testing.T) {
	s := newTestServer(10)
	s.addSubscriber("sess-1")
	s.removeSubscriber("sess-1")

	if len(s.subscribers) != 0 {
		t.Fatalf("expected no subscribers after removal, got %d", len(s.subscribers))
	}
	// fanOut with zero subscribers must not panic.
	s.fanOut(&entropypb.Batch{BatchSequence: 1})
}
