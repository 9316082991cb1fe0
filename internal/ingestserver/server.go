// Package ingestserver is C5: the bidirectional ingestion endpoint that
// orchestrates per-batch validation, persistence via C3+C4, subscriber
// fan-out, and backpressure signalling (spec §4.1). Grounded on
// chromeperf/pinpoint/server/server.go's struct-wraps-dependencies
// server shape (pinpointServer holds its LegacyClient; Server holds its
// persistence pipeline and identity verifier the same way) and on
// golang.org/x/time/rate's non-blocking Allow() usage pattern seen
// alongside the blocking Wait() in
// appengine/cr-rev/backend/gitiles/throttling_client.go.
package ingestserver

import (
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"entropysvc/internal/entropypb"
	"entropysvc/internal/identity"
	"entropysvc/internal/ingest"
)

// DefaultQueueCapacity is Q (spec §4.1 "bounded in-process queue of
// capacity Q (default 1000)").
const DefaultQueueCapacity = 1000

// DefaultSubscriberRate is the per-session token-bucket limit (spec
// §4.1: "default 20 batches/second").
const DefaultSubscriberRate = 20

// DefaultExpectedRateHz is the rate pushed to gateways in response to
// Hello when the operator hasn't overridden it (spec §6: "expected
// event rate in Hz").
const DefaultExpectedRateHz = 50.0

// backpressureFraction is the queue-depth threshold (spec §4.1:
// "queue_depth > 0.8*Q").
const backpressureFraction = 0.8

// Server implements entropypb.EntropyIngestServer.
type Server struct {
	entropypb.UnimplementedEntropyIngestServer

	pipeline       *ingest.Pipeline
	verifier       identity.Verifier
	queueCap       int64
	subRate        rate.Limit
	expectedRateHz float64

	inflight int64 // current queue depth, accessed atomically

	mu          sync.Mutex
	subscribers map[string]*subscriber
}

// subscriber is one active SubscribeBatches session (spec §4.1
// "Subscriber fan-out"): a per-session token-bucket limiter and a
// depth-1 non-blocking channel (spec §5: "ring buffers with depth 1").
type subscriber struct {
	limiter *rate.Limiter
	ch      chan *entropypb.Batch
}

// NewServer wires C5 over an already-constructed persistence pipeline
// and identity verifier. queueCap, subscriberRate and expectedRateHz are
// the operator knobs from spec §6; zero values fall back to the stated
// defaults (no package-global mutable state, per SPEC_FULL.md §4.8).
func NewServer(pipeline *ingest.Pipeline, verifier identity.Verifier, queueCap int, subscriberRate float64, expectedRateHz float64) *Server {
	if queueCap <= 0 {
		queueCap = DefaultQueueCapacity
	}
	if subscriberRate <= 0 {
		subscriberRate = DefaultSubscriberRate
	}
	if expectedRateHz <= 0 {
		expectedRateHz = DefaultExpectedRateHz
	}
	return &Server{
		pipeline:       pipeline,
		verifier:       verifier,
		queueCap:       int64(queueCap),
		subRate:        rate.Limit(subscriberRate),
		expectedRateHz: expectedRateHz,
		subscribers:    make(map[string]*subscriber),
	}
}

// enter increments the in-flight counter and reports whether the
// resulting depth crosses the backpressure threshold (spec §4.1).
func (s *Server) enter() (depth int64, backpressure bool) {
	depth = atomic.AddInt64(&s.inflight, 1)
	return depth, float64(depth) > backpressureFraction*float64(s.queueCap)
}

func (s *Server) leave() {
	atomic.AddInt64(&s.inflight, -1)
}

// addSubscriber registers a new fan-out target (spec §4.1: "on
// SubscribeBatches, a session is added").
func (s *Server) addSubscriber(sessionID string) *subscriber {
	sub := &subscriber{
		limiter: rate.NewLimiter(s.subRate, int(s.subRate)),
		ch:      make(chan *entropypb.Batch, 1),
	}
	s.mu.Lock()
	s.subscribers[sessionID] = sub
	s.mu.Unlock()
	return sub
}

// removeSubscriber unregisters a session (spec §4.1: "on disconnect or
// write error it is removed").
func (s *Server) removeSubscriber(sessionID string) {
	s.mu.Lock()
	delete(s.subscribers, sessionID)
	s.mu.Unlock()
}

// fanOut pushes batch to every current subscriber without blocking
// ingestion: a full channel or a rate-limited session simply drops the
// message for that session (spec §4.1: "fan-out is non-blocking...
// ingestion is never blocked on subscribers").
func (s *Server) fanOut(batch *entropypb.Batch) {
	s.mu.Lock()
	targets := make([]*subscriber, 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		targets = append(targets, sub)
	}
	s.mu.Unlock()

	for _, sub := range targets {
		if !sub.limiter.Allow() {
			continue
		}
		select {
		case sub.ch <- batch:
		default:
		}
	}
}
