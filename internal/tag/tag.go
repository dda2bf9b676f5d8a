// Package tag derives VEIL's discovery tags: time-invariant feed tags and
// rotating rendezvous tags (spec §4.2). Every function here is pure over
// its inputs — no clock reads, no shared state — so the runtime can call
// them freely from any goroutine.
package tag

import (
	"encoding/binary"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/dreamware/veil/internal/codec"
)

const domainFeed = "veil:feed:v1"
const domainRV = "veil:rv:v1"
const domainChannel = "veil:channel:v1"

// defaultChannelID is used when a caller passes an empty channel string.
const defaultChannelID = "default"

// Feed derives a time-invariant feed tag from a publisher key and a
// namespace (spec §3 "Feed tag").
func Feed(publisherKey []byte, namespace uint16) codec.Tag {
	h, _ := blake2b.New256([]byte(domainFeed))
	h.Write(publisherKey)
	var ns [2]byte
	binary.BigEndian.PutUint16(ns[:], namespace)
	h.Write(ns[:])
	return toTag(h.Sum(nil))
}

// Rendezvous derives a rendezvous tag for one recipient key, epoch, and
// namespace (spec §3 "Rendezvous tag"). It rotates every epoch.
func Rendezvous(recipientKey []byte, epoch uint64, namespace uint16) codec.Tag {
	h, _ := blake2b.New256([]byte(domainRV))
	h.Write(recipientKey)
	var e [8]byte
	binary.BigEndian.PutUint64(e[:], epoch)
	h.Write(e[:])
	var ns [2]byte
	binary.BigEndian.PutUint16(ns[:], namespace)
	h.Write(ns[:])
	return toTag(h.Sum(nil))
}

// CurrentEpoch returns floor(nowSeconds / epochSeconds).
func CurrentEpoch(nowSeconds, epochSeconds int64) uint64 {
	if epochSeconds <= 0 {
		return 0
	}
	return uint64(nowSeconds / epochSeconds)
}

// RendezvousWindow returns the set of tags a subscriber should watch near
// an epoch boundary (spec §4.2). It always includes the current epoch's
// tag, and adds the adjacent epoch's tag when the clock is within
// overlapSeconds of that boundary.
func RendezvousWindow(recipientKey []byte, nowSeconds int64, namespace uint16, epochSeconds, overlapSeconds int64) []codec.Tag {
	if epochSeconds <= 0 {
		epochSeconds = 1
	}
	epoch := CurrentEpoch(nowSeconds, epochSeconds)
	offset := nowSeconds - int64(epoch)*epochSeconds

	tags := []codec.Tag{Rendezvous(recipientKey, epoch, namespace)}

	if offset >= epochSeconds-overlapSeconds {
		tags = append(tags, Rendezvous(recipientKey, epoch+1, namespace))
	}
	if offset < overlapSeconds && epoch > 0 {
		tags = append(tags, Rendezvous(recipientKey, epoch-1, namespace))
	}
	return tags
}

// EffectiveNamespace mixes a channel identifier into a base namespace,
// producing the 16-bit namespace actually used for tag derivation (spec
// §4.2 "Channel scoping"). The channel id is normalized (trimmed,
// lowercased) before mixing; an empty channel maps to a fixed default.
func EffectiveNamespace(base uint16, channel string) uint16 {
	c := strings.ToLower(strings.TrimSpace(channel))
	if c == "" {
		c = defaultChannelID
	}
	h, _ := blake2b.New256([]byte(domainChannel))
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], base)
	h.Write(b[:])
	h.Write([]byte(c))
	sum := h.Sum(nil)
	return binary.BigEndian.Uint16(sum[:2]) ^ base
}

func toTag(sum []byte) codec.Tag {
	var t codec.Tag
	copy(t[:], sum)
	return t
}
