// Package eventstore is C1: the append-only, time-partitioned store of
// decay events (spec §4.3). It follows the persistence idiom in
// appengine/weetbix/internal/testverdicts/span.go — a plain row struct
// plus free functions taking an explicit context.Context and a handle —
// generalized from that file's ambient-RPC-serving span.ReadOnlyTransaction
// wrapper to a directly-held *spanner.Client, since this service has no
// surrounding AppEngine request-scoped span package.
package eventstore

import (
	"context"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"

	"entropysvc/internal/analysis"
	"entropysvc/internal/entropyerr"
	"entropysvc/internal/model"

	"go.chromium.org/luci/common/errors"
)

// table is the Spanner table name; partition key is server_received per
// spec §4.3, with (id, server_received) as the unique key.
const table = "Events"

// maxPages bounds deep pagination per spec §9: listings over partitioned
// stores reject offsets beyond this many pages unless a time window is
// present.
const maxPages = 100

// Store is C1, backed by a Cloud Spanner client.
type Store struct {
	client *spanner.Client
}

// New wraps an already-configured Spanner client. Construction of the
// client (DSN, credentials) is the caller's concern (cmd/entropyserver).
func New(client *spanner.Client) *Store {
	return &Store{client: client}
}

// row is the Spanner column mapping for one Events row.
type row struct {
	ID             int64
	BatchID        spanner.NullString
	HWTimestampNS  int64
	SequenceNumber int64
	RPiTimestampUS spanner.NullInt64
	TDCTimestampPS spanner.NullInt64
	Channel        spanner.NullInt64
	Whitened       []byte
	ServerReceived time.Time
	NetworkDelayMS spanner.NullFloat64
	SourceAddress  spanner.NullString
	QualityScore   spanner.NullFloat64
}

func toRow(e model.Event) row {
	r := row{
		ID:             e.ID,
		BatchID:        spanner.NullString{StringVal: e.BatchID, Valid: e.BatchID != ""},
		HWTimestampNS:  e.HWTimestampNS,
		SequenceNumber: e.SequenceNumber,
		Whitened:       e.Whitened,
		ServerReceived: e.ServerReceived,
		SourceAddress:  spanner.NullString{StringVal: e.SourceAddress, Valid: e.SourceAddress != ""},
	}
	if e.RPiTimestampUS != nil {
		r.RPiTimestampUS = spanner.NullInt64{Int64: *e.RPiTimestampUS, Valid: true}
	}
	if e.TDCTimestampPS != nil {
		r.TDCTimestampPS = spanner.NullInt64{Int64: *e.TDCTimestampPS, Valid: true}
	}
	if e.Channel != nil {
		r.Channel = spanner.NullInt64{Int64: int64(*e.Channel), Valid: true}
	}
	if e.NetworkDelayMS != nil {
		r.NetworkDelayMS = spanner.NullFloat64{Float64: *e.NetworkDelayMS, Valid: true}
	}
	if e.QualityScore != nil {
		r.QualityScore = spanner.NullFloat64{Float64: *e.QualityScore, Valid: true}
	}
	return r
}

func (r row) toModel() model.Event {
	e := model.Event{
		ID:             r.ID,
		BatchID:        r.BatchID.StringVal,
		HWTimestampNS:  r.HWTimestampNS,
		SequenceNumber: r.SequenceNumber,
		Whitened:       r.Whitened,
		ServerReceived: r.ServerReceived,
		SourceAddress:  r.SourceAddress.StringVal,
	}
	if r.RPiTimestampUS.Valid {
		v := r.RPiTimestampUS.Int64
		e.RPiTimestampUS = &v
	}
	if r.TDCTimestampPS.Valid {
		v := r.TDCTimestampPS.Int64
		e.TDCTimestampPS = &v
	}
	if r.Channel.Valid {
		v := int32(r.Channel.Int64)
		e.Channel = &v
	}
	if r.NetworkDelayMS.Valid {
		v := r.NetworkDelayMS.Float64
		e.NetworkDelayMS = &v
	}
	if r.QualityScore.Valid {
		v := r.QualityScore.Float64
		e.QualityScore = &v
	}
	return e
}

var columns = []string{
	"ID", "BatchID", "HWTimestampNS", "SequenceNumber", "RPiTimestampUS",
	"TDCTimestampPS", "Channel", "Whitened", "ServerReceived",
	"NetworkDelayMS", "SourceAddress", "QualityScore",
}

// Mutation returns the Spanner insert-or-update mutation for e, for use
// inside the caller's own read-write transaction (spec §4.4: the
// persistence pipeline controls transaction boundaries across a whole
// batch, not the store).
func Mutation(e model.Event) *spanner.Mutation {
	r := toRow(e)
	return spanner.InsertOrUpdate(table, columns, []interface{}{
		r.ID, r.BatchID, r.HWTimestampNS, r.SequenceNumber, r.RPiTimestampUS,
		r.TDCTimestampPS, r.Channel, r.Whitened, r.ServerReceived,
		r.NetworkDelayMS, r.SourceAddress, r.QualityScore,
	})
}

func windowBounds(start, end time.Time) error {
	if !end.After(start) {
		return entropyerr.Invalid("window end %v must be after start %v", end, start)
	}
	return nil
}

// Window returns events in [start, end) ordered by hw_timestamp_ns
// ascending (spec §4.3).
func (s *Store) Window(ctx context.Context, start, end time.Time) ([]model.Event, error) {
	if err := windowBounds(start, end); err != nil {
		return nil, err
	}
	stmt := spanner.Statement{
		SQL: `SELECT ID, BatchID, HWTimestampNS, SequenceNumber, RPiTimestampUS,
		             TDCTimestampPS, Channel, Whitened, ServerReceived,
		             NetworkDelayMS, SourceAddress, QualityScore
		      FROM Events
		      WHERE ServerReceived >= @start AND ServerReceived < @end
		      ORDER BY HWTimestampNS ASC`,
		Params: map[string]interface{}{"start": start, "end": end},
	}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []model.Event
	for {
		r, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Annotate(err, "reading events window").Err()
		}
		var rr row
		if err := r.ToStruct(&rr); err != nil {
			return nil, errors.Annotate(err, "decoding event row").Err()
		}
		out = append(out, rr.toModel())
	}
	return out, nil
}

// Intervals returns the positive consecutive deltas of hw_timestamp_ns in
// [start, end) (spec §4.3). The deltas are computed in this process from
// a full Window read: every event row in the window is fetched from
// Spanner, not reduced inside the database.
func (s *Store) Intervals(ctx context.Context, start, end time.Time) ([]int64, error) {
	events, err := s.Window(ctx, start, end)
	if err != nil {
		return nil, err
	}
	hw := make([]int64, len(events))
	for i, e := range events {
		hw[i] = e.HWTimestampNS
	}
	return analysis.PositiveDeltas(hw), nil
}

// IntervalStats returns the aggregated {count, mean, stddev_pop, min,
// max, median} summary over [start, end) in a single round trip (spec
// §4.3: the store, not the caller, reduces rows to the summary).
func (s *Store) IntervalStats(ctx context.Context, start, end time.Time) (analysis.IntervalStats, error) {
	deltas, err := s.Intervals(ctx, start, end)
	if err != nil {
		return analysis.IntervalStats{}, err
	}
	return analysis.Stats(deltas), nil
}

// Count returns the number of events in [start, end).
func (s *Store) Count(ctx context.Context, start, end time.Time) (int64, error) {
	if err := windowBounds(start, end); err != nil {
		return 0, err
	}
	stmt := spanner.Statement{
		SQL:    `SELECT COUNT(*) AS n FROM Events WHERE ServerReceived >= @start AND ServerReceived < @end`,
		Params: map[string]interface{}{"start": start, "end": end},
	}
	row, err := s.client.Single().Query(ctx, stmt).Next()
	if err != nil {
		return 0, errors.Annotate(err, "counting events").Err()
	}
	var n int64
	if err := row.Column(0, &n); err != nil {
		return 0, errors.Annotate(err, "decoding count").Err()
	}
	return n, nil
}

// Recent lists the N most recent events ordered by hw_timestamp_ns
// descending (spec §4.3), skipping page*n rows. A page beyond maxPages is
// rejected by the deep-pagination guard (spec §9) unless window is
// non-nil.
func (s *Store) Recent(ctx context.Context, n, page int, window *model.Window) ([]model.Event, error) {
	if page > maxPages && window == nil {
		return nil, entropyerr.Invalid("offset beyond %d pages requires a time window", maxPages)
	}
	sql := `SELECT ID, BatchID, HWTimestampNS, SequenceNumber, RPiTimestampUS,
	               TDCTimestampPS, Channel, Whitened, ServerReceived,
	               NetworkDelayMS, SourceAddress, QualityScore
	        FROM Events`
	params := map[string]interface{}{"n": int64(n), "skip": int64(page * n)}
	if window != nil {
		sql += ` WHERE ServerReceived >= @start AND ServerReceived < @end`
		params["start"] = window.Start
		params["end"] = window.End
	}
	sql += ` ORDER BY HWTimestampNS DESC LIMIT @n OFFSET @skip`

	iter := s.client.Single().Query(ctx, spanner.Statement{SQL: sql, Params: params})
	defer iter.Stop()

	var out []model.Event
	for {
		r, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Annotate(err, "listing recent events").Err()
		}
		var rr row
		if err := r.ToStruct(&rr); err != nil {
			return nil, errors.Annotate(err, "decoding event row").Err()
		}
		out = append(out, rr.toModel())
	}
	return out, nil
}
