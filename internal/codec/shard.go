package codec

import "fmt"

// ShardVersion is the only version this codec accepts for shards.
const ShardVersion uint16 = 1

// Shard is one of n erasure-coded pieces of an object's payload (spec §3).
type Shard struct {
	Version    uint16
	Namespace  uint16
	Epoch      uint64
	Tag        Tag
	ObjectRoot [32]byte
	K          uint16
	N          uint16
	Index      uint16
	Payload    []byte
}

// EncodeShard serializes s into its canonical binary form.
func EncodeShard(s *Shard) ([]byte, error) {
	if s.Index >= s.N {
		return nil, fmt.Errorf("%w: shard index %d out of range for n=%d", ErrInvalidEncoding, s.Index, s.N)
	}
	if s.K > s.N {
		return nil, fmt.Errorf("%w: k=%d exceeds n=%d", ErrInvalidEncoding, s.K, s.N)
	}
	buf := make([]byte, 0, 80+len(s.Payload))
	buf = appendUint16(buf, ShardVersion)
	buf = appendUint16(buf, s.Namespace)
	buf = appendUint64(buf, s.Epoch)
	buf = append(buf, s.Tag[:]...)
	buf = append(buf, s.ObjectRoot[:]...)
	buf = appendUint16(buf, s.K)
	buf = appendUint16(buf, s.N)
	buf = appendUint16(buf, s.Index)
	buf = appendBytes32(buf, s.Payload)
	return buf, nil
}

// DecodeShard parses the canonical binary form produced by EncodeShard.
func DecodeShard(b []byte) (*Shard, error) {
	r := &reader{buf: b}

	version, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if version != ShardVersion {
		return nil, fmt.Errorf("%w: unknown shard version %d", ErrInvalidEncoding, version)
	}
	namespace, err := r.uint16()
	if err != nil {
		return nil, err
	}
	epoch, err := r.uint64()
	if err != nil {
		return nil, err
	}
	tagBytes, err := r.fixed(TagSize)
	if err != nil {
		return nil, err
	}
	rootBytes, err := r.fixed(32)
	if err != nil {
		return nil, err
	}
	k, err := r.uint16()
	if err != nil {
		return nil, err
	}
	n, err := r.uint16()
	if err != nil {
		return nil, err
	}
	index, err := r.uint16()
	if err != nil {
		return nil, err
	}
	if k > n {
		return nil, fmt.Errorf("%w: k=%d exceeds n=%d", ErrInvalidEncoding, k, n)
	}
	if index >= n {
		return nil, fmt.Errorf("%w: shard index %d out of range for n=%d", ErrInvalidEncoding, index, n)
	}
	payload, err := r.bytes32()
	if err != nil {
		return nil, err
	}
	if !r.exhausted() {
		return nil, fmt.Errorf("%w: trailing bytes after shard", ErrInvalidEncoding)
	}

	s := &Shard{
		Version: version, Namespace: namespace, Epoch: epoch,
		K: k, N: n, Index: index, Payload: payload,
	}
	copy(s.Tag[:], tagBytes)
	copy(s.ObjectRoot[:], rootBytes)
	return s, nil
}
