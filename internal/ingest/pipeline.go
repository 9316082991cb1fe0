// Package ingest is C4: the persistence pipeline that validates, maps,
// and batch-inserts events with a bounded flush/clear discipline (spec
// §4.4). Grounded on the producer/consumer accumulation loop in
// appengine/weetbix/internal/services/resultcollector/collect_test_results.go,
// generalized from its per-shard RPC fan-out to a single-transaction
// Spanner write loop.
package ingest

import (
	"context"
	"time"

	"cloud.google.com/go/spanner"

	"entropysvc/internal/entropyerr"
	"entropysvc/internal/eventstore"
	"entropysvc/internal/model"
	"entropysvc/internal/whiten"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"
)

// flushEvery bounds memory for large batches (expected up to ~1840
// events per spec §4.4): every this many accumulated mutations are
// pushed to the transaction buffer and the working set released.
const flushEvery = 100

// Pipeline is C4, writing through a single Cloud Spanner client.
type Pipeline struct {
	client *spanner.Client
}

// New wraps an already-configured Spanner client, shared with
// eventstore.Store since both read/write the same Events table.
func New(client *spanner.Client) *Pipeline {
	return &Pipeline{client: client}
}

// RawEvent is one wire-level event prior to mapping (§4.2), as received
// by the ingestion server off a StreamEvents batch.
type RawEvent struct {
	BatchID        string
	HWTimestampNS  int64
	RPiTimestampUS *int64
	TDCTimestampPS *int64
	SequenceNumber int64
	Channel        *int32
	SourceAddress  string
	QualityScore   *float64
}

// Result reports how many of the input events were accepted, mirroring
// the counts the caller folds into Ack (spec §4.1 step 6).
type Result struct {
	ReceivedCount  int
	PersistedCount int
}

// Persist maps, validates, and writes events in a single Spanner
// read-write transaction (spec §4.4: "writes events in a single
// transaction per batch... on any failure the whole batch is rolled
// back"). Invalid individual events are dropped, not fatal to the
// batch (spec §4.1 step 2); a transaction-level failure rolls back the
// whole batch and is returned to the caller.
func (p *Pipeline) Persist(ctx context.Context, events []model.Event, now time.Time) (Result, error) {
	res := Result{ReceivedCount: len(events)}

	accepted := make([]model.Event, 0, len(events))
	for _, e := range events {
		if err := e.Valid(now); err != nil {
			logging.Warningf(ctx, "ingest: dropping invalid event (seq=%d): %v", e.SequenceNumber, err)
			continue
		}
		accepted = append(accepted, e)
	}

	_, err := p.client.ReadWriteTransaction(ctx, func(ctx context.Context, txn *spanner.ReadWriteTransaction) error {
		buf := make([]*spanner.Mutation, 0, flushEvery)
		for _, e := range accepted {
			buf = append(buf, eventstore.Mutation(e))
			if len(buf) >= flushEvery {
				if err := txn.BufferWrite(buf); err != nil {
					return err
				}
				buf = buf[:0]
			}
		}
		if len(buf) > 0 {
			if err := txn.BufferWrite(buf); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return res, errors.Annotate(err, "persisting batch of %d events", len(accepted)).Err()
	}

	res.PersistedCount = len(accepted)
	return res, nil
}

// MapBatch converts raw wire events into canonical model.Event records
// via C3 whitening (spec §4.2). Every raw event yields one record, since
// mapping has no per-event error path; records that fail validation are
// dropped later, by Persist.
func MapBatch(ctx context.Context, batchID string, serverReceived time.Time, raws []RawEvent) []model.Event {
	out := make([]model.Event, 0, len(raws))
	for _, r := range raws {
		hw, wb := whiten.Derive(whiten.Event{
			TDCTimestampPS: r.TDCTimestampPS,
			RPiTimestampUS: r.RPiTimestampUS,
		})
		if hw == 0 {
			// No tdc/rpi pair to derive from; fall back to the caller's
			// explicit hw_timestamp_ns (spec §4.2's documented alternative).
			hw = r.HWTimestampNS
			logging.Debugf(ctx, "ingest: event seq=%d has no timestamp pair, using explicit hw_timestamp_ns", r.SequenceNumber)
		}
		out = append(out, model.Event{
			BatchID:        batchID,
			HWTimestampNS:  hw,
			SequenceNumber: r.SequenceNumber,
			RPiTimestampUS: r.RPiTimestampUS,
			TDCTimestampPS: r.TDCTimestampPS,
			Channel:        r.Channel,
			Whitened:       wb,
			ServerReceived: serverReceived,
			SourceAddress:  r.SourceAddress,
			QualityScore:   r.QualityScore,
		})
	}
	return out
}

var errEmptyBatch = entropyerr.Invalid("batch must be non-empty")

// ValidateBatch enforces the batch-level rule from spec §4.1 step 3.
func ValidateBatch(events []RawEvent) error {
	if len(events) == 0 {
		return errEmptyBatch
	}
	return nil
}
