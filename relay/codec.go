package relay

import "fmt"

// codec is a google.golang.org/grpc encoding.Codec that marshals the
// hand-rolled wireMessage types in this package directly, without
// protobuf reflection or generated stubs. It is registered under a
// content-subtype distinct from "proto" so it never collides with a host
// process's default codec.
type codec struct{}

const codecName = "mutchan-binary"

func (codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(wireMessage)
	if !ok {
		return nil, fmt.Errorf("relay: codec cannot marshal %T", v)
	}
	return m.Marshal(), nil
}

func (codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(wireMessage)
	if !ok {
		return fmt.Errorf("relay: codec cannot unmarshal into %T", v)
	}
	return m.Unmarshal(data)
}

func (codec) Name() string { return codecName }
