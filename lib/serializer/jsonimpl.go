package serializer

import (
	"encoding/json"
)

// NewJSONSerializer creates a serializer using json encoding. This is the
// store default: it round-trips arbitrary schema-less payloads and keeps
// snapshot files inspectable.
func NewJSONSerializer() ISerializer {
	return &jsonSerializerImpl{}
}

// jsonSerializerImpl implements the ISerializer interface using json encoding
type jsonSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer/interface.go)
// --------------------------------------------------------------------------

func (j jsonSerializerImpl) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (j jsonSerializerImpl) Decode(b []byte, out any) error {
	return json.Unmarshal(b, out)
}
