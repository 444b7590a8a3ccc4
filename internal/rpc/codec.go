// Package rpc defines the daemon's gRPC API: the message types, the
// service descriptors and the typed clients. Messages travel as JSON under
// the "json" content-subtype.
package rpc

import (
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// CodecName is the content-subtype every call of this API uses.
const CodecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string                       { return CodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// CallOption selects the JSON codec for a call. Clients of this package
// add it themselves; it is exported for callers that build raw streams.
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
