package serializer

// ISerializer encodes and decodes the opaque value payloads of entries.
// The store treats the result as a blob at the persistence boundary; only
// the envelope (key, namespace, data type, version, metadata) stays typed.
type ISerializer interface {
	// Encode serializes a value into a byte slice.
	Encode(v any) ([]byte, error)
	// Decode deserializes a byte slice into the value pointed to by out.
	Decode(b []byte, out any) error
}
