package serializer

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Frame markers for compressed payloads. Every encoded value is prefixed
// with one marker byte so mixed thresholds stay decodable.
const (
	frameRaw  byte = 0x00
	frameZstd byte = 0x01
)

var (
	zstdEncoder, _ = zstd.NewWriter(nil)
	zstdDecoder, _ = zstd.NewReader(nil)
)

// NewCompressed wraps an inner serializer with zstd compression for payloads
// whose encoded size is at least threshold bytes. A threshold <= 0 disables
// compression but still writes the frame byte.
func NewCompressed(inner ISerializer, threshold int) ISerializer {
	return &compressedImpl{inner: inner, threshold: threshold}
}

type compressedImpl struct {
	inner     ISerializer
	threshold int
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer/interface.go)
// --------------------------------------------------------------------------

func (c *compressedImpl) Encode(v any) ([]byte, error) {
	raw, err := c.inner.Encode(v)
	if err != nil {
		return nil, err
	}
	if c.threshold <= 0 || len(raw) < c.threshold {
		return append([]byte{frameRaw}, raw...), nil
	}
	compressed := zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2+1))
	return append([]byte{frameZstd}, compressed...), nil
}

func (c *compressedImpl) Decode(b []byte, out any) error {
	if len(b) == 0 {
		return fmt.Errorf("empty payload")
	}
	switch b[0] {
	case frameRaw:
		return c.inner.Decode(b[1:], out)
	case frameZstd:
		raw, err := zstdDecoder.DecodeAll(b[1:], nil)
		if err != nil {
			return fmt.Errorf("zstd decode: %w", err)
		}
		return c.inner.Decode(raw, out)
	default:
		return fmt.Errorf("unknown payload frame 0x%02x", b[0])
	}
}
