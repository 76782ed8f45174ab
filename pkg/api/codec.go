package api

import (
	"encoding/json"
	"fmt"

	"connectrpc.com/connect"
)

// CodecName matches the Connect content subtype application/json.
const CodecName = "json"

// Codec encodes plain Go structs as JSON. Pass it to both handlers and
// clients through connect.WithCodec.
type Codec struct{}

var _ connect.Codec = Codec{}

func (Codec) Name() string { return CodecName }

func (Codec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", msg, err)
	}
	return b, nil
}

func (Codec) Unmarshal(data []byte, msg any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, msg); err != nil {
		return fmt.Errorf("unmarshal %T: %w", msg, err)
	}
	return nil
}
