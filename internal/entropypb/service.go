package entropypb

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// SubscribeRequest is SubscribeBatches' single client message; empty for
// now, reserved for future filter criteria.
type SubscribeRequest struct{}

// EntropyIngestServer is the service interface a concrete ingestion
// server implements (spec §6). The shape mirrors what
// protoc-gen-go-grpc would emit from a StreamEvents/SubscribeBatches/
// Control service definition.
type EntropyIngestServer interface {
	StreamEvents(EntropyIngest_StreamEventsServer) error
	SubscribeBatches(*SubscribeRequest, EntropyIngest_SubscribeBatchesServer) error
	Control(EntropyIngest_ControlServer) error
}

// UnimplementedEntropyIngestServer can be embedded in a concrete server
// to satisfy EntropyIngestServer before all methods are implemented,
// mirroring protoc-gen-go-grpc's UnimplementedXxxServer convention (see
// pinpoint.UnimplementedPinpointServer in the teacher's own generated
// code).
type UnimplementedEntropyIngestServer struct{}

func (UnimplementedEntropyIngestServer) StreamEvents(EntropyIngest_StreamEventsServer) error {
	return status.Errorf(codes.Unimplemented, "method StreamEvents not implemented")
}

func (UnimplementedEntropyIngestServer) SubscribeBatches(*SubscribeRequest, EntropyIngest_SubscribeBatchesServer) error {
	return status.Errorf(codes.Unimplemented, "method SubscribeBatches not implemented")
}

func (UnimplementedEntropyIngestServer) Control(EntropyIngest_ControlServer) error {
	return status.Errorf(codes.Unimplemented, "method Control not implemented")
}

// EntropyIngest_StreamEventsServer is the StreamEvents bidi stream as
// seen by the server implementation.
type EntropyIngest_StreamEventsServer interface {
	Send(*Ack) error
	Recv() (*Batch, error)
	grpc.ServerStream
}

type entropyIngestStreamEventsServer struct{ grpc.ServerStream }

func (s *entropyIngestStreamEventsServer) Send(m *Ack) error { return s.SendMsg(m) }
func (s *entropyIngestStreamEventsServer) Recv() (*Batch, error) {
	m := new(Batch)
	if err := s.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// EntropyIngest_SubscribeBatchesServer is the SubscribeBatches
// server-streaming half as seen by the server implementation.
type EntropyIngest_SubscribeBatchesServer interface {
	Send(*Batch) error
	grpc.ServerStream
}

type entropyIngestSubscribeBatchesServer struct{ grpc.ServerStream }

func (s *entropyIngestSubscribeBatchesServer) Send(m *Batch) error { return s.SendMsg(m) }

// EntropyIngest_ControlServer is the Control bidi stream as seen by the
// server implementation.
type EntropyIngest_ControlServer interface {
	Send(*ControlResponse) error
	Recv() (*ControlRequest, error)
	grpc.ServerStream
}

type entropyIngestControlServer struct{ grpc.ServerStream }

func (s *entropyIngestControlServer) Send(m *ControlResponse) error { return s.SendMsg(m) }
func (s *entropyIngestControlServer) Recv() (*ControlRequest, error) {
	m := new(ControlRequest)
	if err := s.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _EntropyIngest_StreamEvents_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(EntropyIngestServer).StreamEvents(&entropyIngestStreamEventsServer{stream})
}

func _EntropyIngest_SubscribeBatches_Handler(srv interface{}, stream grpc.ServerStream) error {
	req := new(SubscribeRequest)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(EntropyIngestServer).SubscribeBatches(req, &entropyIngestSubscribeBatchesServer{stream})
}

func _EntropyIngest_Control_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(EntropyIngestServer).Control(&entropyIngestControlServer{stream})
}

// EntropyIngest_ServiceDesc is the grpc.ServiceDesc passed to
// grpc.Server.RegisterService, hand-authored in place of a
// protoc-gen-go-grpc output (spec §1: the wire form is an external
// concern; this is the minimal real google.golang.org/grpc wiring needed
// to exercise it end to end).
var EntropyIngest_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "entropy.v1.EntropyIngest",
	HandlerType: (*EntropyIngestServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       _EntropyIngest_StreamEvents_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
		{
			StreamName:    "SubscribeBatches",
			Handler:       _EntropyIngest_SubscribeBatches_Handler,
			ServerStreams: true,
		},
		{
			StreamName:    "Control",
			Handler:       _EntropyIngest_Control_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "entropy/v1/ingest.proto",
}

// RegisterEntropyIngestServer registers srv on s, mirroring the
// protoc-gen-go-grpc RegisterXxxServer helper.
func RegisterEntropyIngestServer(s grpc.ServiceRegistrar, srv EntropyIngestServer) {
	s.RegisterService(&EntropyIngest_ServiceDesc, srv)
}
