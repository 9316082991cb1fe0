package entropypb

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// jsonCodecName is registered with google.golang.org/grpc/encoding so a
// grpc.Server/ClientConn configured with grpc.CallContentSubtype("json")
// (or a default codec override) marshals these plain structs instead of
// requiring a protoc-generated proto.Message.
const jsonCodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
