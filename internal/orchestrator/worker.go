package orchestrator

import (
	"context"
	"fmt"

	"go.chromium.org/luci/common/errors"
	"go.chromium.org/luci/common/logging"

	"entropysvc/internal/entropyerr"
	"entropysvc/internal/eventstore"
	"entropysvc/internal/identity"
	"entropysvc/internal/model"
	"entropysvc/internal/resultstore"
	"entropysvc/internal/validators"
)

// Orchestrator is C7.
type Orchestrator struct {
	events    *eventstore.Store
	results   *resultstore.Store
	suite22   validators.Suite22Client
	assessor  validators.Assessor90BClient
	svcTokens *identity.ServiceTokenSource
	cfg       Config
	limiter   ActiveJobsLimiter
	pool      *pool
}

// New builds an Orchestrator; cfg must already satisfy Config.Validate
// (spec §4.6: rejected at job start, here enforced at construction so a
// broken configuration can never be wired in).
func New(events *eventstore.Store, results *resultstore.Store, suite22 validators.Suite22Client, assessor validators.Assessor90BClient, svcTokens *identity.ServiceTokenSource, cfg Config, maxParallelJobs int) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Orchestrator{
		events:    events,
		results:   results,
		suite22:   suite22,
		assessor:  assessor,
		svcTokens: svcTokens,
		cfg:       cfg,
		limiter:   ActiveJobsLimiter{MaxActivePerActor: DefaultMaxActivePerActor},
		pool:      newPool(maxParallelJobs),
	}, nil
}

// SubmitJob implements spec §4.6 "Job submission": pre-flight check,
// persist a QUEUED row, return immediately, and hand the job to the
// bounded worker pool.
func (o *Orchestrator) SubmitJob(ctx context.Context, jobType model.JobType, window model.Window, actor, callerToken string) (model.ValidationJob, error) {
	active, err := o.results.ActiveJobCount(ctx, actor)
	if err != nil {
		return model.ValidationJob{}, err
	}
	if int(active) >= o.limiter.MaxActivePerActor {
		return model.ValidationJob{}, entropyerr.Invalid("actor %s already has %d active jobs (limit %d)", actor, active, o.limiter.MaxActivePerActor)
	}

	job := model.ValidationJob{
		JobID:       newJobID(),
		Type:        jobType,
		Status:      model.JobQueued,
		WindowStart: window.Start,
		WindowEnd:   window.End,
		CreatedAt:   now(),
		CreatedBy:   actor,
		RunID:       newRunID(),
	}
	if err := o.results.InsertJob(ctx, job); err != nil {
		return model.ValidationJob{}, err
	}

	o.pool.submit(func(workerCtx context.Context) {
		o.runJob(workerCtx, job, callerToken)
	})

	return job, nil
}

// runJob is the worker loop of spec §4.6.
func (o *Orchestrator) runJob(ctx context.Context, job model.ValidationJob, callerToken string) {
	job.Status = model.JobRunning
	started := now()
	job.StartedAt = &started
	if err := o.results.UpdateJob(ctx, job); err != nil {
		logging.Warningf(ctx, "orchestrator: marking job %s RUNNING: %v", job.JobID, err)
		return
	}

	if err := o.execute(ctx, &job, callerToken); err != nil {
		o.fail(ctx, &job, err.Error())
		return
	}

	job.Status = model.JobCompleted
	job.ProgressPercent = 100
	completed := now()
	job.CompletedAt = &completed
	if err := o.results.UpdateJob(ctx, job); err != nil {
		logging.Warningf(ctx, "orchestrator: marking job %s COMPLETED: %v", job.JobID, err)
	}
}

func (o *Orchestrator) fail(ctx context.Context, job *model.ValidationJob, reason string) {
	job.Status = model.JobFailed
	job.Error = reason
	completed := now()
	job.CompletedAt = &completed
	if err := o.results.UpdateJob(ctx, *job); err != nil {
		logging.Warningf(ctx, "orchestrator: marking job %s FAILED: %v", job.JobID, err)
	}
}

// execute runs steps 2-6 of the worker loop for a single job.
func (o *Orchestrator) execute(ctx context.Context, job *model.ValidationJob, callerToken string) error {
	events, err := o.events.Window(ctx, job.WindowStart, job.WindowEnd)
	if err != nil {
		return errors.Annotate(err, "loading window for job %s", job.JobID).Err()
	}

	bits := ExtractBitstream(events)

	switch job.Type {
	case model.Suite22:
		if BitCount(len(bits)) < int64(o.cfg.MinBits22) {
			return entropyerr.Insufficient(o.cfg.MinBits22, int(BitCount(len(bits))), "suite22 job %s has too few bits", job.JobID)
		}
	case model.Assess90B:
		if len(bits) == 0 {
			return entropyerr.Insufficient(1, 0, "assess90b job %s has no bits", job.JobID)
		}
	default:
		return entropyerr.Invalid("unknown job type %q", job.Type)
	}

	bearer, err := identity.ResolveBearer(ctx, callerToken, o.svcTokens)
	if err != nil {
		return err
	}

	switch job.Type {
	case model.Suite22:
		return o.runSuite22(ctx, job, bits, bearer)
	case model.Assess90B:
		return o.runAssess90B(ctx, job, bits, bearer)
	}
	return nil
}

func (o *Orchestrator) runSuite22(ctx context.Context, job *model.ValidationJob, bits []byte, bearer string) error {
	chunks := ChunkSuite22(bits, o.cfg)
	job.TotalChunks = len(chunks)

	for i, chunk := range chunks {
		out, err := o.suite22.RunTestSuite22(ctx, bearer, chunk)
		if err != nil {
			return errors.Annotate(err, "suite22 chunk %d/%d", i+1, len(chunks)).Err()
		}

		rows := make([]model.TestResult, 0, len(out.Results))
		for _, t := range out.Results {
			details := validators.NormalizeDetails(t.Warning)
			rows = append(rows, model.TestResult{
				RunID:          job.RunID,
				TestName:       t.Name,
				Passed:         t.Passed,
				PValue:         t.PValue,
				BitsTested:     BitCount(len(chunk)),
				Window:         model.Window{Start: job.WindowStart, End: job.WindowEnd},
				ExecutedAt:     now(),
				ChunkIndex:     i + 1,
				ChunkCount:     len(chunks),
				BatchID:        job.JobID,
				DetailsJSON:    details,
				ChunkCompliant: out.NISTCompliant,
			})
		}
		if err := o.results.InsertTestResults(ctx, rows); err != nil {
			return errors.Annotate(err, "persisting suite22 chunk %d results", i+1).Err()
		}

		job.CurrentChunk = i + 1
		job.ProgressPercent = 100 * float64(i+1) / float64(len(chunks))
		if err := o.results.UpdateJob(ctx, *job); err != nil {
			logging.Warningf(ctx, "orchestrator: updating progress for job %s: %v", job.JobID, err)
		}
	}
	return nil
}

func (o *Orchestrator) runAssess90B(ctx context.Context, job *model.ValidationJob, bits []byte, bearer string) error {
	chunk := ChunkAssess90B(bits, o.cfg)
	job.TotalChunks = 1

	out, err := o.assessor.AssessEntropy90B(ctx, bearer, chunk, 8, true, true, 1)
	if err != nil {
		return errors.Annotate(err, "assess90b job %s", job.JobID).Err()
	}

	agg := model.AssessmentResult{
		RunID:       job.RunID,
		MinEntropy:  out.MinEntropy,
		Passed:      out.Passed,
		BitsTested:  BitCount(len(chunk)),
		Window:      model.Window{Start: job.WindowStart, End: job.WindowEnd},
		ExecutedAt:  now(),
		ChunkIndex:  1,
		ChunkCount:  1,
		DetailsJSON: validators.NormalizeDetails(out.AssessmentSummary),
	}

	var estimators []model.EstimatorResult
	for _, e := range out.IIDResults {
		estimators = append(estimators, toEstimatorRow(job.RunID, model.IID, e))
	}
	for _, e := range out.NonIIDResults {
		estimators = append(estimators, toEstimatorRow(job.RunID, model.NonIID, e))
	}

	if err := o.results.InsertAssessment(ctx, agg, estimators); err != nil {
		return errors.Annotate(err, "persisting assess90b result for job %s", job.JobID).Err()
	}

	job.CurrentChunk = 1
	job.ProgressPercent = 100
	return o.results.UpdateJob(ctx, *job)
}

func toEstimatorRow(runID string, typ model.EstimatorType, e validators.EstimatorOutcome) model.EstimatorResult {
	passed := false
	if e.Passed != nil {
		passed = *e.Passed
	}
	return model.EstimatorResult{
		AssessmentRunID: runID,
		TestType:        typ,
		EstimatorName:   e.Name,
		EntropyEstimate: e.EntropyEstimate,
		Passed:          passed,
		DetailsJSON:     validators.NormalizeDetails(e.Details),
		Description:     fmt.Sprintf("%s estimator (%s)", e.Name, typ),
	}
}

// RecoverAtStartup marks every non-terminal job FAILED (spec §4.6
// "Startup recovery"), with a distinct message per prior status.
func (o *Orchestrator) RecoverAtStartup(ctx context.Context) (int, error) {
	jobs, err := o.results.NonTerminalJobs(ctx)
	if err != nil {
		return 0, err
	}
	for _, j := range jobs {
		reason := "failed during processing"
		if j.Status == model.JobQueued {
			reason = "failed before start"
		}
		o.fail(ctx, &j, reason)
	}
	return len(jobs), nil
}
