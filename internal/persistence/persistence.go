package persistence

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/dreamware/veil/internal/cache"
	"github.com/dreamware/veil/internal/codec"
	"github.com/dreamware/veil/internal/policy"
)

// ErrInvalidSnapshot is returned by LoadState when the byte stream is
// truncated or carries an unsupported version.
var ErrInvalidSnapshot = errors.New("persistence: invalid snapshot")

const stateVersion = 1

// SaveState emits a self-describing snapshot of cache entries, tag
// subscriptions, and policy state (spec §4.9).
func SaveState(c *cache.Cache, subscriptions []codec.Tag, pol *policy.Engine) []byte {
	var buf []byte
	buf = appendUint32(buf, stateVersion)

	cacheBlob := c.Snapshot()
	buf = appendUint32(buf, uint32(len(cacheBlob)))
	buf = append(buf, cacheBlob...)

	buf = appendUint32(buf, uint32(len(subscriptions)))
	for _, tag := range subscriptions {
		buf = append(buf, tag[:]...)
	}

	buf = appendIDSet(buf, pol.TrustedSet())
	buf = appendIDSet(buf, pol.MutedSet())
	buf = appendIDSet(buf, pol.BlockedSet())

	endorsements := pol.Endorsements()
	buf = appendUint32(buf, uint32(len(endorsements)))
	for _, rec := range endorsements {
		buf = appendString(buf, string(rec.Endorser))
		buf = appendString(buf, string(rec.Publisher))
		buf = appendInt64(buf, rec.Step)
	}

	return buf
}

// LoadState restores c and pol from a previously taken SaveState
// snapshot and returns the persisted subscription set. Counters and lane
// health are never part of the snapshot and are left untouched.
func LoadState(data []byte, c *cache.Cache, pol *policy.Engine) ([]codec.Tag, error) {
	r := &reader{buf: data}

	version, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if version != stateVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidSnapshot, version)
	}

	cacheLen, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	cacheBlob, err := r.fixed(int(cacheLen))
	if err != nil {
		return nil, fmt.Errorf("%w: cache blob: %v", ErrInvalidSnapshot, err)
	}

	subCount, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	subs := make([]codec.Tag, 0, subCount)
	for i := uint32(0); i < subCount; i++ {
		raw, err := r.fixed(codec.TagSize)
		if err != nil {
			return nil, fmt.Errorf("%w: subscription %d: %v", ErrInvalidSnapshot, i, err)
		}
		var tag codec.Tag
		copy(tag[:], raw)
		subs = append(subs, tag)
	}

	trusted, err := r.idSet()
	if err != nil {
		return nil, fmt.Errorf("%w: trusted set: %v", ErrInvalidSnapshot, err)
	}
	muted, err := r.idSet()
	if err != nil {
		return nil, fmt.Errorf("%w: muted set: %v", ErrInvalidSnapshot, err)
	}
	blocked, err := r.idSet()
	if err != nil {
		return nil, fmt.Errorf("%w: blocked set: %v", ErrInvalidSnapshot, err)
	}

	endorsementCount, err := r.uint32()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	endorsements := make([]policy.EndorsementRecord, 0, endorsementCount)
	for i := uint32(0); i < endorsementCount; i++ {
		endorser, err := r.str()
		if err != nil {
			return nil, fmt.Errorf("%w: endorsement %d: %v", ErrInvalidSnapshot, i, err)
		}
		publisher, err := r.str()
		if err != nil {
			return nil, fmt.Errorf("%w: endorsement %d: %v", ErrInvalidSnapshot, i, err)
		}
		step, err := r.int64()
		if err != nil {
			return nil, fmt.Errorf("%w: endorsement %d: %v", ErrInvalidSnapshot, i, err)
		}
		endorsements = append(endorsements, policy.EndorsementRecord{
			Endorser:  policy.PublisherID(endorser),
			Publisher: policy.PublisherID(publisher),
			Step:      step,
		})
	}

	if err := c.Restore(cacheBlob); err != nil {
		return nil, fmt.Errorf("%w: restoring cache: %v", ErrInvalidSnapshot, err)
	}
	pol.LoadState(trusted, muted, blocked, endorsements)
	return subs, nil
}

func appendIDSet(buf []byte, ids []policy.PublisherID) []byte {
	buf = appendUint32(buf, uint32(len(ids)))
	for _, id := range ids {
		buf = appendString(buf, string(id))
	}
	return buf
}

func appendUint32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendInt64(b []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(b, tmp[:]...)
}

func appendString(b []byte, s string) []byte {
	b = appendUint32(b, uint32(len(s)))
	return append(b, s...)
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) fixed(n int) ([]byte, error) {
	if n < 0 || len(r.buf)-r.pos < n {
		return nil, errors.New("truncated")
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *reader) int64() (int64, error) {
	b, err := r.fixed(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *reader) str() (string, error) {
	n, err := r.uint32()
	if err != nil {
		return "", err
	}
	b, err := r.fixed(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) idSet() ([]policy.PublisherID, error) {
	n, err := r.uint32()
	if err != nil {
		return nil, err
	}
	out := make([]policy.PublisherID, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := r.str()
		if err != nil {
			return nil, err
		}
		out = append(out, policy.PublisherID(s))
	}
	return out, nil
}
