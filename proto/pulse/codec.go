// ABOUTME: gRPC codec carrying NexusPulse messages as JSON.
// ABOUTME: Registered under the "json" content subtype so protobuf services are unaffected.

package pulse

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype used by the NexusPulse service.
const CodecName = "json"

func init() {
	encoding.RegisterCodec(codec{})
}

// codec implements encoding.Codec using encoding/json.
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("pulse codec marshal %T: %w", v, err)
	}
	return data, nil
}

func (codec) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("pulse codec unmarshal %T: %w", v, err)
	}
	return nil
}

func (codec) Name() string {
	return CodecName
}
