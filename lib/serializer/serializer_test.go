package serializer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, s ISerializer, v any) any {
	t.Helper()
	b, err := s.Encode(v)
	require.NoError(t, err)
	var out any
	require.NoError(t, s.Decode(b, &out))
	return out
}

func TestJSONRoundTrip(t *testing.T) {
	s := NewJSONSerializer()

	assert.Equal(t, "hello", roundTrip(t, s, "hello"))
	assert.Equal(t, 42.0, roundTrip(t, s, 42)) // json numbers decode as float64
	assert.Equal(t, true, roundTrip(t, s, true))
	assert.Equal(t,
		map[string]any{"status": "done", "tags": []any{"a", "b"}},
		roundTrip(t, s, map[string]any{"status": "done", "tags": []any{"a", "b"}}))
	assert.Nil(t, roundTrip(t, s, nil))
}

func TestGobRoundTrip(t *testing.T) {
	s := NewGobSerializer()

	assert.Equal(t, "hello", roundTrip(t, s, "hello"))
	assert.Equal(t,
		map[string]any{"count": 3, "nested": []any{"x"}},
		roundTrip(t, s, map[string]any{"count": 3, "nested": []any{"x"}}))
}

func TestCompressedSmallPayloadStaysRaw(t *testing.T) {
	s := NewCompressed(NewJSONSerializer(), 1024)

	b, err := s.Encode("tiny")
	require.NoError(t, err)
	assert.Equal(t, frameRaw, b[0])

	var out any
	require.NoError(t, s.Decode(b, &out))
	assert.Equal(t, "tiny", out)
}

func TestCompressedLargePayloadShrinks(t *testing.T) {
	s := NewCompressed(NewJSONSerializer(), 64)
	big := strings.Repeat("agent coordination state ", 500)

	b, err := s.Encode(big)
	require.NoError(t, err)
	assert.Equal(t, frameZstd, b[0])
	assert.Less(t, len(b), len(big), "repetitive payloads must compress")

	var out any
	require.NoError(t, s.Decode(b, &out))
	assert.Equal(t, big, out)
}

func TestCompressedRejectsGarbage(t *testing.T) {
	s := NewCompressed(NewJSONSerializer(), 64)

	var out any
	assert.Error(t, s.Decode(nil, &out))
	assert.Error(t, s.Decode([]byte{0xFF, 0x01}, &out))
}
