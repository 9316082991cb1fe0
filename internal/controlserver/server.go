// Package controlserver is the operator-facing counterpart to
// ingestserver: it exposes C7 (the validation orchestrator) as a small
// unary gRPC service so cmd/entropyctl can submit jobs and poll status
// without a direct Spanner dependency, mirroring how
// chromeperf/pinpoint/cli drives the pinpoint gRPC service rather than
// reading its datastore directly.
package controlserver

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"entropysvc/internal/entropyerr"
	"entropysvc/internal/entropypb"
	"entropysvc/internal/identity"
	"entropysvc/internal/model"
	"entropysvc/internal/orchestrator"
)

// Server implements entropypb.EntropyControlServer.
type Server struct {
	entropypb.UnimplementedEntropyControlServer

	orch     *orchestrator.Orchestrator
	verifier identity.Verifier
}

// NewServer wires C7 behind the management RPC surface.
func NewServer(orch *orchestrator.Orchestrator, verifier identity.Verifier) *Server {
	return &Server{orch: orch, verifier: verifier}
}

func (s *Server) authorize(ctx context.Context, role string) (identity.Principal, error) {
	principal, err := s.verifier.VerifyInbound(ctx, identity.ExtractInboundToken(ctx))
	if err != nil {
		return identity.Principal{}, status.Errorf(codes.Unauthenticated, "%v", err)
	}
	if !principal.HasRole(role) && !principal.HasRole("ADMIN") {
		return identity.Principal{}, status.Errorf(codes.PermissionDenied, "principal %s lacks %s capability", principal.Name, role)
	}
	return principal, nil
}

// SubmitJob requires ADMIN (spec §4.6: job submission is an operator
// action).
func (s *Server) SubmitJob(ctx context.Context, req *entropypb.SubmitJobRequest) (*entropypb.SubmitJobResponse, error) {
	principal, err := s.authorize(ctx, "ADMIN")
	if err != nil {
		return nil, err
	}

	var jobType model.JobType
	switch req.JobType {
	case string(model.Suite22):
		jobType = model.Suite22
	case string(model.Assess90B):
		jobType = model.Assess90B
	default:
		return nil, status.Errorf(codes.InvalidArgument, "unknown job_type %q", req.JobType)
	}

	job, err := s.orch.SubmitJob(ctx, jobType, model.Window{Start: req.WindowStart, End: req.WindowEnd}, principal.Name, req.CallerToken)
	if err != nil {
		return nil, toStatus(err)
	}
	return &entropypb.SubmitJobResponse{JobID: job.JobID, RunID: job.RunID, Status: string(job.Status)}, nil
}

// GetStatus requires USER or ADMIN.
func (s *Server) GetStatus(ctx context.Context, req *entropypb.GetStatusRequest) (*entropypb.GetStatusResponse, error) {
	if _, err := s.authorize(ctx, "USER"); err != nil {
		return nil, err
	}
	job, err := s.orch.GetStatus(ctx, req.JobID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &entropypb.GetStatusResponse{
		JobID:           job.JobID,
		Type:            string(job.Type),
		Status:          string(job.Status),
		ProgressPercent: job.ProgressPercent,
		CurrentChunk:    job.CurrentChunk,
		TotalChunks:     job.TotalChunks,
		Error:           job.Error,
	}, nil
}

// GetResult requires USER or ADMIN and a COMPLETED job (spec §4.6).
func (s *Server) GetResult(ctx context.Context, req *entropypb.GetResultRequest) (*entropypb.GetResultResponse, error) {
	if _, err := s.authorize(ctx, "USER"); err != nil {
		return nil, err
	}
	res, err := s.orch.GetResult(ctx, req.JobID)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &entropypb.GetResultResponse{JobID: res.Job.JobID, JobType: string(res.Job.Type)}
	if res.Job.Type == model.Suite22 {
		resp.TestResultCount = len(res.TestResults)
		resp.OverallPassRate, resp.NISTCompliant = summarizeSuite22(res.TestResults)
		return resp, nil
	}

	if res.Assessment != nil {
		resp.MinEntropy = res.Assessment.MinEntropy
		resp.NISTCompliant = res.Assessment.Passed
	}
	for _, e := range res.Estimators {
		resp.Estimators = append(resp.Estimators, entropypb.EstimatorSummary{
			Type:            string(e.TestType),
			EntropyEstimate: e.EntropyEstimate,
			Passed:          e.Passed,
		})
	}
	return resp, nil
}

// summarizeSuite22 computes the overall pass rate and the job-level
// uniformity flag from a run's TestResult rows: the logical AND of each
// distinct chunk's ChunkCompliant (spec §9's "uniformity flag"). Both
// are zero-valued when results is empty.
func summarizeSuite22(results []model.TestResult) (passRate float64, uniform bool) {
	if len(results) == 0 {
		return 0, false
	}
	passed := 0
	seenChunks := make(map[int]bool)
	uniform = true
	for _, t := range results {
		if t.Passed {
			passed++
		}
		if !seenChunks[t.ChunkIndex] {
			seenChunks[t.ChunkIndex] = true
			uniform = uniform && t.ChunkCompliant
		}
	}
	return float64(passed) / float64(len(results)), uniform
}

// toStatus maps an entropyerr-classified domain error to a gRPC status
// code (spec §7's error kinds read naturally onto the standard codes).
func toStatus(err error) error {
	switch {
	case entropyerr.Is(err, entropyerr.InvalidInput):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	case entropyerr.Is(err, entropyerr.NotFound):
		return status.Errorf(codes.NotFound, "%v", err)
	case entropyerr.Is(err, entropyerr.InsufficientData):
		return status.Errorf(codes.FailedPrecondition, "%v", err)
	case entropyerr.Is(err, entropyerr.TemporaryUnavailable):
		return status.Errorf(codes.Unavailable, "%v", err)
	case entropyerr.Is(err, entropyerr.AuthUnavailable):
		return status.Errorf(codes.Unauthenticated, "%v", err)
	default:
		return status.Errorf(codes.Internal, "%v", err)
	}
}
