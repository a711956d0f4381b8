package serializer

import (
	"bytes"
	"encoding/gob"
)

func init() {
	// Register the concrete types schema-less payloads decode into so gob
	// can encode them behind the any interface.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// NewGobSerializer creates a serializer using gob encoding. Denser than json
// for large structured payloads, at the cost of self-description.
func NewGobSerializer() ISerializer {
	return &gobSerializerImpl{}
}

// gobSerializerImpl implements the ISerializer interface using gob encoding
type gobSerializerImpl struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer/interface.go)
// --------------------------------------------------------------------------

func (g gobSerializerImpl) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (g gobSerializerImpl) Decode(b []byte, out any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(out)
}
