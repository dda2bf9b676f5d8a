package forwarding

import (
	"github.com/dreamware/veil/internal/codec"
	"github.com/dreamware/veil/internal/policy"
)

// Peer identifies a remote node the engine may forward to.
type Peer string

// Lane names which transport a forward is scheduled on.
type Lane int

const (
	FastLane Lane = iota
	FallbackLane
)

// Forward is one outbound send decision: to whom, on which lane.
type Forward struct {
	Peer Peer
	Lane Lane
}

// Config holds the tunables from spec §4.6/§6.
type Config struct {
	FastFanout        int
	FallbackFanout    int
	MaxForwardHops    int
	UnknownFloorRatio float64 // fraction of forwarding capacity reserved for unknown-tier peers
	SeenSetMaxEntries int
	SeenSetTTLTicks   int64
	OpenRelay         bool
}

// DefaultConfig matches the conservative defaults implied by spec §6.
func DefaultConfig() Config {
	return Config{
		FastFanout:        4,
		FallbackFanout:    2,
		MaxForwardHops:    6,
		UnknownFloorRatio: 0.2,
		SeenSetMaxEntries: 10_000,
		SeenSetTTLTicks:   3_600,
		OpenRelay:         false,
	}
}

type seenEntry struct {
	hash     [32]byte
	expireAt int64
	order    int64
}

// Engine is VEIL's forwarding and subscription engine.
type Engine struct {
	cfg    Config
	policy *policy.Engine

	subscriptions map[codec.Tag]struct{}

	seen       map[[32]byte]int64 // hash -> expire tick
	seenOrder  []seenEntry
	seenSerial int64
}

// New constructs a forwarding engine bound to a policy engine for
// tier-based peer ordering.
func New(cfg Config, pol *policy.Engine) *Engine {
	return &Engine{
		cfg:           cfg,
		policy:        pol,
		subscriptions: make(map[codec.Tag]struct{}),
		seen:          make(map[[32]byte]int64),
	}
}

// SetFanout overrides the per-lane fanout bounds, used by the runtime to
// apply adaptive rebalancing (spec §4.7) without rebuilding the engine
// and losing its seen-set state.
func (e *Engine) SetFanout(fast, fallback int) {
	e.cfg.FastFanout = fast
	e.cfg.FallbackFanout = fallback
}

// Subscribe adds tag to the subscription set.
func (e *Engine) Subscribe(tag codec.Tag) { e.subscriptions[tag] = struct{}{} }

// Unsubscribe removes tag from the subscription set.
func (e *Engine) Unsubscribe(tag codec.Tag) { delete(e.subscriptions, tag) }

// IsSubscribed reports whether tag is currently subscribed (or open-relay
// mode makes the question moot).
func (e *Engine) IsSubscribed(tag codec.Tag) bool {
	if e.cfg.OpenRelay {
		return true
	}
	_, ok := e.subscriptions[tag]
	return ok
}

// Admit decides whether an incoming shard should be accepted, applying
// spec §4.6's admission rules in order. publisher may be "" when the
// shard isn't yet bound to a known publisher.
func (e *Engine) Admit(tag codec.Tag, shardHash [32]byte, publisher policy.PublisherID, nowTick int64) bool {
	if !e.cfg.OpenRelay && !e.IsSubscribed(tag) {
		return false
	}
	e.expireSeen(nowTick)
	if e.hasSeen(shardHash, nowTick) {
		return false
	}
	if publisher != "" && e.policy != nil && e.policy.IsBlocked(publisher) {
		return false
	}
	e.markSeen(shardHash, nowTick)
	return true
}

func (e *Engine) hasSeen(hash [32]byte, nowTick int64) bool {
	expireAt, ok := e.seen[hash]
	if !ok {
		return false
	}
	return e.cfg.SeenSetTTLTicks <= 0 || expireAt > nowTick
}

func (e *Engine) markSeen(hash [32]byte, nowTick int64) {
	if e.cfg.SeenSetMaxEntries > 0 && len(e.seen) >= e.cfg.SeenSetMaxEntries {
		e.evictOldestSeen()
	}
	e.seenSerial++
	expireAt := nowTick + e.cfg.SeenSetTTLTicks
	e.seen[hash] = expireAt
	e.seenOrder = append(e.seenOrder, seenEntry{hash: hash, expireAt: expireAt, order: e.seenSerial})
}

func (e *Engine) expireSeen(nowTick int64) {
	if e.cfg.SeenSetTTLTicks <= 0 {
		return
	}
	kept := e.seenOrder[:0]
	for _, ent := range e.seenOrder {
		if ent.expireAt <= nowTick {
			delete(e.seen, ent.hash)
			continue
		}
		kept = append(kept, ent)
	}
	e.seenOrder = kept
}

func (e *Engine) evictOldestSeen() {
	if len(e.seenOrder) == 0 {
		return
	}
	oldest := e.seenOrder[0]
	delete(e.seen, oldest.hash)
	e.seenOrder = e.seenOrder[1:]
}

// SelectForwards picks which peers to forward a shard to, honoring hop
// limits, per-lane fanout bounds, and tier-ordered peer selection with a
// reserved floor for unknown-tier peers (spec §4.6 "Forwarding").
// sourcePeer is excluded from consideration; hop is the shard's current
// hop counter on receipt.
func (e *Engine) SelectForwards(peers []Peer, sourcePeer Peer, hop int, nowStep int64) []Forward {
	if hop >= e.cfg.MaxForwardHops {
		return nil
	}
	candidates := make([]Peer, 0, len(peers))
	for _, p := range peers {
		if p != sourcePeer {
			candidates = append(candidates, p)
		}
	}
	if e.cfg.OpenRelay || e.policy == nil {
		return e.assignLanes(candidates)
	}

	ordered := e.orderByTierWithFloor(candidates, nowStep)
	return e.assignLanes(ordered)
}

// orderByTierWithFloor returns candidates ordered trusted, known, then
// unknown, but always reserves at least UnknownFloorRatio of the total
// forwarding capacity for unknown-tier peers at the front of that
// capacity window, so overlay discovery survives policy stress.
func (e *Engine) orderByTierWithFloor(candidates []Peer, nowStep int64) []Peer {
	var trusted, known, unknown []Peer
	for _, p := range candidates {
		switch e.policy.Tier(policy.PublisherID(p), nowStep) {
		case policy.Trusted:
			trusted = append(trusted, p)
		case policy.Known:
			known = append(known, p)
		default:
			unknown = append(unknown, p)
		}
	}

	capacity := e.cfg.FastFanout + e.cfg.FallbackFanout
	floor := int(float64(capacity) * e.cfg.UnknownFloorRatio)
	if floor > len(unknown) {
		floor = len(unknown)
	}

	out := make([]Peer, 0, len(candidates))
	out = append(out, unknown[:floor]...)
	out = append(out, trusted...)
	out = append(out, known...)
	out = append(out, unknown[floor:]...)
	return out
}

func (e *Engine) assignLanes(ordered []Peer) []Forward {
	out := make([]Forward, 0, e.cfg.FastFanout+e.cfg.FallbackFanout)
	i := 0
	for ; i < len(ordered) && i < e.cfg.FastFanout; i++ {
		out = append(out, Forward{Peer: ordered[i], Lane: FastLane})
	}
	for j := 0; i < len(ordered) && j < e.cfg.FallbackFanout; i, j = i+1, j+1 {
		out = append(out, Forward{Peer: ordered[i], Lane: FallbackLane})
	}
	return out
}
