// Package serializer provides the pluggable value codecs of the entry store.
//
// Two encodings are included (json, gob) plus a compression wrapper that
// zstd-compresses payloads above a configurable threshold. The store keeps
// payloads opaque: a value is encoded once on Set and the resulting blob is
// what flows through cache, indexes and persistence.
package serializer
