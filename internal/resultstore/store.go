// Package resultstore is C2: persistence of ValidationJob records,
// per-chunk SP 800-22 TestResults, and per-chunk SP 800-90B
// AssessmentResults + EstimatorResults (spec §3, §4.3 partition policy).
// Follows the same row-struct-plus-free-function idiom as eventstore,
// grounded on
// appengine/weetbix/internal/services/testverdictingester/span.go.
package resultstore

import (
	"context"
	"time"

	"cloud.google.com/go/spanner"
	"google.golang.org/api/iterator"

	"entropysvc/internal/entropyerr"
	"entropysvc/internal/model"

	"go.chromium.org/luci/common/errors"
)

// Store is C2, backed by the same Cloud Spanner database as C1 (spec §6
// "Persisted state layout": jobs and estimator rows are unpartitioned
// tables; test/assessment rows are partitioned by executed_at).
type Store struct {
	client *spanner.Client
}

// New wraps an already-configured Spanner client.
func New(client *spanner.Client) *Store {
	return &Store{client: client}
}

// --- ValidationJob ---------------------------------------------------

type jobRow struct {
	JobID           string
	Type            string
	Status          string
	ProgressPercent float64
	CurrentChunk    int64
	TotalChunks     int64
	WindowStart     time.Time
	WindowEnd       time.Time
	CreatedAt       time.Time
	StartedAt       spanner.NullTime
	CompletedAt     spanner.NullTime
	Error           spanner.NullString
	CreatedBy       string
	RunID           string
}

func jobToRow(j model.ValidationJob) jobRow {
	r := jobRow{
		JobID:           j.JobID,
		Type:            string(j.Type),
		Status:          string(j.Status),
		ProgressPercent: j.ProgressPercent,
		CurrentChunk:    int64(j.CurrentChunk),
		TotalChunks:     int64(j.TotalChunks),
		WindowStart:     j.WindowStart,
		WindowEnd:       j.WindowEnd,
		CreatedAt:       j.CreatedAt,
		CreatedBy:       j.CreatedBy,
		RunID:           j.RunID,
		Error:           spanner.NullString{StringVal: j.Error, Valid: j.Error != ""},
	}
	if j.StartedAt != nil {
		r.StartedAt = spanner.NullTime{Time: *j.StartedAt, Valid: true}
	}
	if j.CompletedAt != nil {
		r.CompletedAt = spanner.NullTime{Time: *j.CompletedAt, Valid: true}
	}
	return r
}

func (r jobRow) toModel() model.ValidationJob {
	j := model.ValidationJob{
		JobID:           r.JobID,
		Type:            model.JobType(r.Type),
		Status:          model.JobStatus(r.Status),
		ProgressPercent: r.ProgressPercent,
		CurrentChunk:    int(r.CurrentChunk),
		TotalChunks:     int(r.TotalChunks),
		WindowStart:     r.WindowStart,
		WindowEnd:       r.WindowEnd,
		CreatedAt:       r.CreatedAt,
		CreatedBy:       r.CreatedBy,
		RunID:           r.RunID,
		Error:           r.Error.StringVal,
	}
	if r.StartedAt.Valid {
		t := r.StartedAt.Time
		j.StartedAt = &t
	}
	if r.CompletedAt.Valid {
		t := r.CompletedAt.Time
		j.CompletedAt = &t
	}
	return j
}

var jobColumns = []string{
	"JobID", "Type", "Status", "ProgressPercent", "CurrentChunk", "TotalChunks",
	"WindowStart", "WindowEnd", "CreatedAt", "StartedAt", "CompletedAt",
	"Error", "CreatedBy", "RunID",
}

// InsertJob persists a new QUEUED job.
func (s *Store) InsertJob(ctx context.Context, j model.ValidationJob) error {
	r := jobToRow(j)
	m := spanner.InsertOrUpdate("ValidationJobs", jobColumns, []interface{}{
		r.JobID, r.Type, r.Status, r.ProgressPercent, r.CurrentChunk, r.TotalChunks,
		r.WindowStart, r.WindowEnd, r.CreatedAt, r.StartedAt, r.CompletedAt,
		r.Error, r.CreatedBy, r.RunID,
	})
	_, err := s.client.Apply(ctx, []*spanner.Mutation{m})
	if err != nil {
		return errors.Annotate(err, "inserting job %s", j.JobID).Err()
	}
	return nil
}

// GetJob returns the persisted job row verbatim (spec §4.6 GetStatus).
func (s *Store) GetJob(ctx context.Context, jobID string) (model.ValidationJob, error) {
	row, err := s.client.Single().ReadRow(ctx, "ValidationJobs", spanner.Key{jobID}, jobColumns)
	if spanner.ErrCode(err) == 5 /* NotFound */ {
		return model.ValidationJob{}, entropyerr.Missing("job %q not found", jobID)
	}
	if err != nil {
		return model.ValidationJob{}, errors.Annotate(err, "reading job %s", jobID).Err()
	}
	var r jobRow
	if err := row.ToStruct(&r); err != nil {
		return model.ValidationJob{}, errors.Annotate(err, "decoding job row").Err()
	}
	return r.toModel(), nil
}

// UpdateJob persists the full job row (used by the orchestrator for every
// lifecycle transition, spec §4.6).
func (s *Store) UpdateJob(ctx context.Context, j model.ValidationJob) error {
	return s.InsertJob(ctx, j)
}

// NonTerminalJobs returns every job row not in a terminal state, used at
// startup recovery (spec §4.6).
func (s *Store) NonTerminalJobs(ctx context.Context) ([]model.ValidationJob, error) {
	stmt := spanner.Statement{
		SQL: `SELECT JobID, Type, Status, ProgressPercent, CurrentChunk, TotalChunks,
		             WindowStart, WindowEnd, CreatedAt, StartedAt, CompletedAt,
		             Error, CreatedBy, RunID
		      FROM ValidationJobs WHERE Status IN ('QUEUED', 'RUNNING')`,
	}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []model.ValidationJob
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Annotate(err, "listing non-terminal jobs").Err()
		}
		var r jobRow
		if err := row.ToStruct(&r); err != nil {
			return nil, errors.Annotate(err, "decoding job row").Err()
		}
		out = append(out, r.toModel())
	}
	return out, nil
}

// ActiveJobCount returns the number of non-terminal jobs created by
// actor, for the job-submission pre-flight check (spec §4.6).
func (s *Store) ActiveJobCount(ctx context.Context, actor string) (int64, error) {
	stmt := spanner.Statement{
		SQL: `SELECT COUNT(*) AS n FROM ValidationJobs
		      WHERE CreatedBy = @actor AND Status IN ('QUEUED', 'RUNNING')`,
		Params: map[string]interface{}{"actor": actor},
	}
	row, err := s.client.Single().Query(ctx, stmt).Next()
	if err != nil {
		return 0, errors.Annotate(err, "counting active jobs for %s", actor).Err()
	}
	var n int64
	if err := row.Column(0, &n); err != nil {
		return 0, errors.Annotate(err, "decoding active job count").Err()
	}
	return n, nil
}

// --- TestResult (SP 800-22) -------------------------------------------

// InsertTestResults writes one row per chunk per test, sharing run_id
// (spec §4.6 "Result persistence").
func (s *Store) InsertTestResults(ctx context.Context, results []model.TestResult) error {
	muts := make([]*spanner.Mutation, 0, len(results))
	for _, r := range results {
		var pValue spanner.NullFloat64
		if r.PValue != nil {
			pValue = spanner.NullFloat64{Float64: *r.PValue, Valid: true}
		}
		muts = append(muts, spanner.InsertOrUpdate("TestResults",
			[]string{"RunID", "TestName", "Passed", "PValue", "BitsTested",
				"WindowStart", "WindowEnd", "ExecutedAt", "ChunkIndex",
				"ChunkCount", "BatchID", "DetailsJSON", "ChunkCompliant"},
			[]interface{}{r.RunID, r.TestName, r.Passed, pValue, r.BitsTested,
				r.Window.Start, r.Window.End, r.ExecutedAt, int64(r.ChunkIndex),
				int64(r.ChunkCount), r.BatchID, r.DetailsJSON, r.ChunkCompliant}))
	}
	if len(muts) == 0 {
		return nil
	}
	if _, err := s.client.Apply(ctx, muts); err != nil {
		return errors.Annotate(err, "inserting %d test results", len(muts)).Err()
	}
	return nil
}

// TestResultsForRun returns every TestResult row for a run, ordered by
// chunk_index then test_name, for GetResult aggregation (spec §4.6).
func (s *Store) TestResultsForRun(ctx context.Context, runID string) ([]model.TestResult, error) {
	stmt := spanner.Statement{
		SQL: `SELECT RunID, TestName, Passed, PValue, BitsTested, WindowStart,
		             WindowEnd, ExecutedAt, ChunkIndex, ChunkCount, BatchID, DetailsJSON, ChunkCompliant
		      FROM TestResults WHERE RunID = @runID ORDER BY ChunkIndex, TestName`,
		Params: map[string]interface{}{"runID": runID},
	}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()

	var out []model.TestResult
	for {
		row, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Annotate(err, "listing test results for run %s", runID).Err()
		}
		var (
			runID, testName, batchID, detailsJSON string
			passed, chunkCompliant                bool
			pValue                                 spanner.NullFloat64
			bitsTested                             int64
			windowStart, windowEnd, executedAt     time.Time
			chunkIndex, chunkCount                 int64
		)
		if err := row.Columns(&runID, &testName, &passed, &pValue, &bitsTested,
			&windowStart, &windowEnd, &executedAt, &chunkIndex, &chunkCount,
			&batchID, &detailsJSON, &chunkCompliant); err != nil {
			return nil, errors.Annotate(err, "decoding test result row").Err()
		}
		tr := model.TestResult{
			RunID: runID, TestName: testName, Passed: passed, BitsTested: bitsTested,
			Window:         model.Window{Start: windowStart, End: windowEnd},
			ExecutedAt:     executedAt,
			ChunkIndex:     int(chunkIndex),
			ChunkCount:     int(chunkCount),
			BatchID:        batchID,
			DetailsJSON:    detailsJSON,
			ChunkCompliant: chunkCompliant,
		}
		if pValue.Valid {
			v := pValue.Float64
			tr.PValue = &v
		}
		out = append(out, tr)
	}
	return out, nil
}

// --- AssessmentResult + EstimatorResult (SP 800-90B) -------------------

// InsertAssessment writes one aggregate row plus its per-estimator
// detail rows (spec §4.6).
func (s *Store) InsertAssessment(ctx context.Context, a model.AssessmentResult, estimators []model.EstimatorResult) error {
	muts := []*spanner.Mutation{
		spanner.InsertOrUpdate("AssessmentResults",
			[]string{"RunID", "MinEntropy", "Passed", "BitsTested", "WindowStart",
				"WindowEnd", "ExecutedAt", "ChunkIndex", "ChunkCount", "DetailsJSON"},
			[]interface{}{a.RunID, a.MinEntropy, a.Passed, a.BitsTested, a.Window.Start,
				a.Window.End, a.ExecutedAt, int64(a.ChunkIndex), int64(a.ChunkCount), a.DetailsJSON}),
	}
	for _, e := range estimators {
		var estimate spanner.NullFloat64
		if e.EntropyEstimate != nil {
			estimate = spanner.NullFloat64{Float64: *e.EntropyEstimate, Valid: true}
		}
		muts = append(muts, spanner.InsertOrUpdate("EstimatorResults",
			[]string{"AssessmentRunID", "TestType", "EstimatorName", "EntropyEstimate",
				"Passed", "DetailsJSON", "Description"},
			[]interface{}{e.AssessmentRunID, string(e.TestType), e.EstimatorName, estimate,
				e.Passed, e.DetailsJSON, e.Description}))
	}
	if _, err := s.client.Apply(ctx, muts); err != nil {
		return errors.Annotate(err, "inserting assessment for run %s", a.RunID).Err()
	}
	return nil
}

// AssessmentForRun returns the aggregate + estimator rows for a
// completed 90B run (spec §4.6 GetResult).
func (s *Store) AssessmentForRun(ctx context.Context, runID string) (model.AssessmentResult, []model.EstimatorResult, error) {
	row, err := s.client.Single().ReadRow(ctx, "AssessmentResults", spanner.Key{runID},
		[]string{"RunID", "MinEntropy", "Passed", "BitsTested", "WindowStart",
			"WindowEnd", "ExecutedAt", "ChunkIndex", "ChunkCount", "DetailsJSON"})
	if spanner.ErrCode(err) == 5 {
		return model.AssessmentResult{}, nil, entropyerr.Missing("assessment run %q not found", runID)
	}
	if err != nil {
		return model.AssessmentResult{}, nil, errors.Annotate(err, "reading assessment %s", runID).Err()
	}
	var (
		rid, detailsJSON                   string
		minEntropy                         float64
		passed                             bool
		bitsTested                         int64
		windowStart, windowEnd, executedAt time.Time
		chunkIndex, chunkCount             int64
	)
	if err := row.Columns(&rid, &minEntropy, &passed, &bitsTested, &windowStart,
		&windowEnd, &executedAt, &chunkIndex, &chunkCount, &detailsJSON); err != nil {
		return model.AssessmentResult{}, nil, errors.Annotate(err, "decoding assessment row").Err()
	}
	agg := model.AssessmentResult{
		RunID: rid, MinEntropy: minEntropy, Passed: passed, BitsTested: bitsTested,
		Window:      model.Window{Start: windowStart, End: windowEnd},
		ExecutedAt:  executedAt,
		ChunkIndex:  int(chunkIndex),
		ChunkCount:  int(chunkCount),
		DetailsJSON: detailsJSON,
	}

	stmt := spanner.Statement{
		SQL: `SELECT AssessmentRunID, TestType, EstimatorName, EntropyEstimate,
		             Passed, DetailsJSON, Description
		      FROM EstimatorResults WHERE AssessmentRunID = @runID`,
		Params: map[string]interface{}{"runID": runID},
	}
	iter := s.client.Single().Query(ctx, stmt)
	defer iter.Stop()
	var ests []model.EstimatorResult
	for {
		r, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return agg, nil, errors.Annotate(err, "listing estimator results").Err()
		}
		var (
			arID, testType, name, details, desc string
			estimate                             spanner.NullFloat64
			passed                               bool
		)
		if err := r.Columns(&arID, &testType, &name, &estimate, &passed, &details, &desc); err != nil {
			return agg, nil, errors.Annotate(err, "decoding estimator row").Err()
		}
		er := model.EstimatorResult{
			AssessmentRunID: arID, TestType: model.EstimatorType(testType),
			EstimatorName: name, Passed: passed, DetailsJSON: details, Description: desc,
		}
		if estimate.Valid {
			v := estimate.Float64
			er.EntropyEstimate = &v
		}
		ests = append(ests, er)
	}
	return agg, ests, nil
}
