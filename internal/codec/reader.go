package codec

import (
	"encoding/binary"
	"fmt"
)

// reader is a minimal cursor over a byte slice used by the decoders below.
// It never panics on short input; every accessor returns ErrInvalidEncoding
// instead so callers can propagate a typed error up through the runtime.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) exhausted() bool { return r.pos == len(r.buf) }

func (r *reader) fixed(n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, fmt.Errorf("%w: truncated input (want %d bytes, have %d)", ErrInvalidEncoding, n, r.remaining())
	}
	out := append([]byte(nil), r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return out, nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.fixed(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) uint64() (uint64, error) {
	b, err := r.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// bytes32 reads a uint32 length prefix followed by that many bytes.
func (r *reader) bytes32() ([]byte, error) {
	lenBytes, err := r.fixed(4)
	if err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBytes)
	if uint64(n) > uint64(r.remaining()) {
		return nil, fmt.Errorf("%w: length-prefixed field claims %d bytes, only %d remain", ErrInvalidEncoding, n, r.remaining())
	}
	return r.fixed(int(n))
}
