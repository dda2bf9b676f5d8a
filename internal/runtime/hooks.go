package runtime

import (
	"github.com/dreamware/veil/internal/codec"
	"github.com/dreamware/veil/internal/lane"
)

// ShardMeta is the metadata passed to OnShard, deliberately excluding
// the raw payload (already available via the cache if the caller needs
// it).
type ShardMeta struct {
	ObjectRoot [32]byte
	Index      uint16
	K, N       uint16
	Tag        codec.Tag
}

// Hooks is the caller-supplied callback set (spec §6 "Hook/callback
// set"). Every field is optional; nil hooks are simply not invoked.
type Hooks struct {
	OnShard               func(peer string, meta ShardMeta)
	OnReconstructable     func(root [32]byte, held, needed int)
	OnReconstructed       func(root [32]byte, objectBytes []byte)
	OnPayload             func(root [32]byte, cleartext []byte)
	OnLaneHealth          func(laneName string, snapshot lane.Counters, score float64)
	OnForward             func(peer string)
	OnForwardError        func(laneName string, peer string, err error)
	OnIgnoredDuplicate    func(peer string)
	OnIgnoredMalformed    func(peer string)
	OnIgnoredUnsubscribed func(tag codec.Tag)
	OnReconstructFailed   func(root [32]byte, err error)
	OnPersistenceError    func(err error)
	OnSnapshot            func(blob []byte)
}
