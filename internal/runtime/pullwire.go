package runtime

import (
	"bytes"
	"encoding/binary"
	"errors"

	"github.com/dreamware/veil/internal/codec"
)

// pullWirePrefix is the fixed ASCII marker that distinguishes a pull
// request from an ordinary shard on the wire (spec §6 "Wire format for
// pull requests"). Receivers that don't recognize it fall through to
// ordinary shard decoding, which the codec then rejects.
var pullWirePrefix = []byte("VEILREQ1")

// ErrNotPullRequest is returned by decodePullWire when the bytes don't
// carry the pull-request prefix.
var ErrNotPullRequest = errors.New("runtime: not a pull request")

type pullWire struct {
	objectRoot [32]byte
	tag        codec.Tag
	k, n       uint16
	want       []uint16
	hop        uint16
}

func encodePullWire(p pullWire) []byte {
	buf := make([]byte, 0, len(pullWirePrefix)+32+32+2+2+2+2+2*len(p.want))
	buf = append(buf, pullWirePrefix...)
	buf = append(buf, p.objectRoot[:]...)
	buf = append(buf, p.tag[:]...)
	buf = appendUint16(buf, p.k)
	buf = appendUint16(buf, p.n)
	buf = appendUint16(buf, p.hop)
	buf = appendUint16(buf, uint16(len(p.want)))
	for _, idx := range p.want {
		buf = appendUint16(buf, idx)
	}
	return buf
}

func decodePullWire(data []byte) (pullWire, error) {
	if len(data) < len(pullWirePrefix) || !bytes.Equal(data[:len(pullWirePrefix)], pullWirePrefix) {
		return pullWire{}, ErrNotPullRequest
	}
	pos := len(pullWirePrefix)
	need := func(n int) bool { return len(data)-pos >= n }

	if !need(32 + 32 + 2 + 2 + 2 + 2) {
		return pullWire{}, errors.New("runtime: truncated pull request")
	}
	var p pullWire
	copy(p.objectRoot[:], data[pos:pos+32])
	pos += 32
	copy(p.tag[:], data[pos:pos+32])
	pos += 32
	p.k = binary.BigEndian.Uint16(data[pos : pos+2])
	pos += 2
	p.n = binary.BigEndian.Uint16(data[pos : pos+2])
	pos += 2
	p.hop = binary.BigEndian.Uint16(data[pos : pos+2])
	pos += 2
	wantCount := binary.BigEndian.Uint16(data[pos : pos+2])
	pos += 2

	if !need(2 * int(wantCount)) {
		return pullWire{}, errors.New("runtime: truncated pull request indices")
	}
	p.want = make([]uint16, wantCount)
	for i := range p.want {
		p.want[i] = binary.BigEndian.Uint16(data[pos : pos+2])
		pos += 2
	}
	return p, nil
}

func appendUint16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}
