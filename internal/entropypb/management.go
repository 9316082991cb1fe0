package entropypb

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SubmitJobRequest starts a validation run over [window_start, window_end)
// (spec §4.6 "Job submission").
type SubmitJobRequest struct {
	JobType     string    `json:"job_type"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	CallerToken string    `json:"caller_token,omitempty"`
}

// SubmitJobResponse echoes the freshly persisted QUEUED row.
type SubmitJobResponse struct {
	JobID  string `json:"job_id"`
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// GetStatusRequest/Response implement spec §4.6 "Progress reads":
// GetStatus returns the persisted job row verbatim.
type GetStatusRequest struct {
	JobID string `json:"job_id"`
}

type GetStatusResponse struct {
	JobID           string  `json:"job_id"`
	Type            string  `json:"type"`
	Status          string  `json:"status"`
	ProgressPercent float64 `json:"progress_percent"`
	CurrentChunk    int     `json:"current_chunk"`
	TotalChunks     int     `json:"total_chunks"`
	Error           string  `json:"error,omitempty"`
}

// GetResultRequest/Response return the computed aggregate over a
// COMPLETED job's chunk rows (spec §4.6).
type GetResultRequest struct {
	JobID string `json:"job_id"`
}

type EstimatorSummary struct {
	Type            string   `json:"type"`
	EntropyEstimate *float64 `json:"entropy_estimate,omitempty"`
	Passed          bool     `json:"passed"`
}

type GetResultResponse struct {
	JobID           string             `json:"job_id"`
	JobType         string             `json:"job_type"`
	TestResultCount int                `json:"test_result_count,omitempty"`
	OverallPassRate float64            `json:"overall_pass_rate,omitempty"`
	NISTCompliant   bool               `json:"nist_compliant,omitempty"`
	MinEntropy      float64            `json:"min_entropy,omitempty"`
	Estimators      []EstimatorSummary `json:"estimators,omitempty"`
}

// EntropyControlServer is the operator-facing management RPC surface
// (spec §4.6), separate from C5's gateway-facing EntropyIngestServer.
type EntropyControlServer interface {
	SubmitJob(context.Context, *SubmitJobRequest) (*SubmitJobResponse, error)
	GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error)
	GetResult(context.Context, *GetResultRequest) (*GetResultResponse, error)
}

// UnimplementedEntropyControlServer mirrors protoc-gen-go-grpc's
// generated embed-for-forward-compatibility convention.
type UnimplementedEntropyControlServer struct{}

func (UnimplementedEntropyControlServer) SubmitJob(context.Context, *SubmitJobRequest) (*SubmitJobResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method SubmitJob not implemented")
}

func (UnimplementedEntropyControlServer) GetStatus(context.Context, *GetStatusRequest) (*GetStatusResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetStatus not implemented")
}

func (UnimplementedEntropyControlServer) GetResult(context.Context, *GetResultRequest) (*GetResultResponse, error) {
	return nil, status.Errorf(codes.Unimplemented, "method GetResult not implemented")
}

func _EntropyControl_SubmitJob_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(SubmitJobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntropyControlServer).SubmitJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/entropy.v1.EntropyControl/SubmitJob"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EntropyControlServer).SubmitJob(ctx, req.(*SubmitJobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _EntropyControl_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetStatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntropyControlServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/entropy.v1.EntropyControl/GetStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EntropyControlServer).GetStatus(ctx, req.(*GetStatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _EntropyControl_GetResult_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(GetResultRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(EntropyControlServer).GetResult(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/entropy.v1.EntropyControl/GetResult"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(EntropyControlServer).GetResult(ctx, req.(*GetResultRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// EntropyControl_ServiceDesc is the grpc.ServiceDesc for the management
// RPCs, hand-authored for the same reason as EntropyIngest_ServiceDesc
// (spec §1: the wire form is an external concern).
var EntropyControl_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "entropy.v1.EntropyControl",
	HandlerType: (*EntropyControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitJob", Handler: _EntropyControl_SubmitJob_Handler},
		{MethodName: "GetStatus", Handler: _EntropyControl_GetStatus_Handler},
		{MethodName: "GetResult", Handler: _EntropyControl_GetResult_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "entropy/v1/control.proto",
}

// RegisterEntropyControlServer registers srv on s.
func RegisterEntropyControlServer(s grpc.ServiceRegistrar, srv EntropyControlServer) {
	s.RegisterService(&EntropyControl_ServiceDesc, srv)
}
