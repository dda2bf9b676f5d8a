package tracker

import (
	"fmt"

	"github.com/dreamware/veil/internal/codec"
	"github.com/dreamware/veil/internal/fec"
	"github.com/google/uuid"
)

// State names the reconstruction tracker's per-object lifecycle stage
// (spec §4.5).
type State int

const (
	// Collecting accepts and stores incoming indices; fewer than k held.
	Collecting State = iota
	// Pulling means k-1 indices are held and, once the cooldown elapses,
	// a pull request for the missing index is due.
	Pulling
	// Reconstructing means k or more indices are held and FEC
	// reconstruction should be attempted.
	Reconstructing
	// Done means reconstruction already succeeded; further indices for
	// this root are dropped at admission.
	Done
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "COLLECTING"
	case Pulling:
		return "PULLING"
	case Reconstructing:
		return "RECONSTRUCTING"
	case Done:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// PullRequest is what the tracker emits when it wants missing shards
// fetched from a peer (spec §4.5).
type PullRequest struct {
	ID            string // unique per emitted request, for reply correlation
	ObjectRoot    [32]byte
	Tag           codec.Tag
	K, N          int
	WantedIndices []uint16
	Hop           int
}

// object is the tracker's per-root bookkeeping.
type object struct {
	tag          codec.Tag
	k, n         int
	mode         fec.Mode
	shards       [][]byte
	held         int
	state        State
	lastPullAtMs int64
	pulledOnce   bool
}

// Tracker drives reconstruction for every object root currently in
// flight. It is not safe for concurrent use; the runtime's single tick
// loop owns it.
type Tracker struct {
	objects    map[[32]byte]*object
	cooldownMs int64

	onReconstructed     func(root [32]byte, bytes []byte)
	onReconstructFailed func(root [32]byte, err error)
	onPullRequest       func(req PullRequest)
}

// New constructs a tracker with the given pull-request cooldown.
func New(cooldownMs int64) *Tracker {
	return &Tracker{
		objects:    make(map[[32]byte]*object),
		cooldownMs: cooldownMs,
	}
}

// OnReconstructed registers the callback fired on successful reassembly.
func (t *Tracker) OnReconstructed(fn func(root [32]byte, bytes []byte)) { t.onReconstructed = fn }

// OnReconstructFailed registers the callback fired when FEC reconstruct
// reports a root mismatch.
func (t *Tracker) OnReconstructFailed(fn func(root [32]byte, err error)) { t.onReconstructFailed = fn }

// OnPullRequest registers the callback fired when the tracker wants
// missing indices fetched from peers.
func (t *Tracker) OnPullRequest(fn func(req PullRequest)) { t.onPullRequest = fn }

// State reports the current lifecycle stage for root, or false if the
// tracker has never seen it.
func (t *Tracker) State(root [32]byte) (State, bool) {
	o, ok := t.objects[root]
	if !ok {
		return 0, false
	}
	return o.state, true
}

// Admit records an incoming shard index for root and drives the state
// machine forward. k, n, and mode describe the object's FEC parameters
// and must be consistent across calls for the same root. nowMs is the
// caller's current time in milliseconds, used for pull-request cooldown.
func (t *Tracker) Admit(root [32]byte, index uint16, payload []byte, tag codec.Tag, k, n int, mode fec.Mode, nowMs int64) {
	o, ok := t.objects[root]
	if !ok {
		o = &object{tag: tag, k: k, n: n, mode: mode, shards: make([][]byte, n), state: Collecting}
		t.objects[root] = o
	}
	if o.state == Done {
		return
	}
	if int(index) >= n || o.shards[index] != nil {
		return
	}
	o.shards[index] = payload
	o.held++

	t.advance(root, o, nowMs)
}

// Tick re-evaluates every in-flight object against the current time,
// emitting a pull request for any object sitting in PULLING whose
// cooldown has elapsed.
func (t *Tracker) Tick(nowMs int64) {
	for root, o := range t.objects {
		if o.state == Pulling {
			t.maybePull(root, o, nowMs)
		}
	}
}

func (t *Tracker) advance(root [32]byte, o *object, nowMs int64) {
	switch {
	case o.held >= o.k:
		o.state = Reconstructing
		t.reconstruct(root, o)
	case o.held == o.k-1:
		o.state = Pulling
		t.maybePull(root, o, nowMs)
	default:
		o.state = Collecting
	}
}

func (t *Tracker) maybePull(root [32]byte, o *object, nowMs int64) {
	if o.pulledOnce && nowMs-o.lastPullAtMs < t.cooldownMs {
		return
	}
	wanted := make([]uint16, 0, o.k-o.held)
	for i, s := range o.shards {
		if s == nil {
			wanted = append(wanted, uint16(i))
			if len(wanted) == o.k-o.held {
				break
			}
		}
	}
	if len(wanted) == 0 {
		return
	}
	o.pulledOnce = true
	o.lastPullAtMs = nowMs
	if t.onPullRequest != nil {
		t.onPullRequest(PullRequest{
			ID:            uuid.NewString(),
			ObjectRoot:    root,
			Tag:           o.tag,
			K:             o.k,
			N:             o.n,
			WantedIndices: wanted,
			Hop:           0,
		})
	}
}

func (t *Tracker) reconstruct(root [32]byte, o *object) {
	bytes, err := fec.Reconstruct(o.shards, o.k, o.n, o.mode, root)
	if err != nil {
		delete(t.objects, root)
		if t.onReconstructFailed != nil {
			t.onReconstructFailed(root, fmt.Errorf("tracker: %w", err))
		}
		return
	}
	o.state = Done
	o.shards = nil
	if t.onReconstructed != nil {
		t.onReconstructed(root, bytes)
	}
}

// Forget discards all held state for root, used by callers that want to
// abandon an in-flight object (e.g. policy demotion of its publisher).
func (t *Tracker) Forget(root [32]byte) {
	delete(t.objects, root)
}
