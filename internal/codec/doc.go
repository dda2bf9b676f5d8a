// Package codec implements the canonical binary encoding for VEIL's two
// wire records, Object and Shard, plus the hashing and signing primitives
// that sit on top of that encoding.
//
// # Canonical form
//
// Encoding is deterministic: the same logical record always produces the
// same bytes, so hash(encode(x)) is a stable identity for x. Decoding is
// strict — trailing bytes, truncated fields, out-of-range lengths, and
// unknown versions are all rejected with ErrInvalidEncoding rather than
// silently accepted. There is exactly one valid encoding per record; this
// package never has to reconcile two byte strings that decode to the same
// value.
//
// # Layout
//
// Both records open with a small header (version, namespace, epoch; an
// Object adds a flags field, a Shard has none) followed by fixed-width
// fields and variable-length fields each prefixed by a uint32 length.
// An Object's optional fields (sender_pubkey, signature) are gated by the
// SIGNED flag rather than a presence byte, so the decoder never has to
// guess; the signature comes last, after the variable-length fields.
package codec
