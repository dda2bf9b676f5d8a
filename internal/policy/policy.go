package policy

import (
	"sort"
	"sync"
)

// Tier classifies a publisher for peer-ordering and forwarding decisions
// (spec §4.8).
type Tier int

const (
	Unknown Tier = iota
	Muted
	Known
	Trusted
	Blocked
)

func (t Tier) String() string {
	switch t {
	case Blocked:
		return "blocked"
	case Trusted:
		return "trusted"
	case Known:
		return "known"
	case Muted:
		return "muted"
	default:
		return "unknown"
	}
}

// PublisherID identifies a publisher, typically a hex-encoded public key.
type PublisherID string

const (
	decayStepsDefault = 10_000
	knownThreshold    = 1.0
	scoreCap          = 10.0
)

type endorsementKey struct {
	endorser  PublisherID
	publisher PublisherID
}

type endorsement struct {
	step int64
}

// Contributor is one endorser's weighted contribution to a publisher's
// score, as surfaced by Explain.
type Contributor struct {
	Endorser PublisherID
	Weight   float64
}

// Explanation is the deterministic, UI-facing output of Explain.
type Explanation struct {
	Tier         Tier
	Score        float64
	Contributors []Contributor
}

// Engine is VEIL's local policy/web-of-trust store. It is not safe for
// concurrent mutation from multiple goroutines without external locking,
// though reads and writes each take an internal lock for safety.
type Engine struct {
	mu sync.Mutex

	trusted map[PublisherID]struct{}
	blocked map[PublisherID]struct{}
	muted   map[PublisherID]struct{}

	endorsements map[endorsementKey]endorsement

	decaySteps int64
}

// New constructs an empty policy engine using the locked decay window
// (see DESIGN.md "Open Question decisions").
func New() *Engine {
	return &Engine{
		trusted:      make(map[PublisherID]struct{}),
		blocked:      make(map[PublisherID]struct{}),
		muted:        make(map[PublisherID]struct{}),
		endorsements: make(map[endorsementKey]endorsement),
		decaySteps:   decayStepsDefault,
	}
}

// Trust adds publisher to the trusted set.
func (e *Engine) Trust(publisher PublisherID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.trusted[publisher] = struct{}{}
}

// Untrust removes publisher from the trusted set.
func (e *Engine) Untrust(publisher PublisherID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.trusted, publisher)
}

// Block adds publisher to the blocked set.
func (e *Engine) Block(publisher PublisherID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.blocked[publisher] = struct{}{}
}

// Unblock removes publisher from the blocked set.
func (e *Engine) Unblock(publisher PublisherID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.blocked, publisher)
}

// Mute adds publisher to the muted set.
func (e *Engine) Mute(publisher PublisherID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted[publisher] = struct{}{}
}

// Unmute removes publisher from the muted set.
func (e *Engine) Unmute(publisher PublisherID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.muted, publisher)
}

// IsBlocked reports whether publisher is currently blocked.
func (e *Engine) IsBlocked(publisher PublisherID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.blocked[publisher]
	return ok
}

// Endorse records that endorser vouches for publisher at the given step.
// Endorsement pairs are de-duplicated: a repeat endorsement refreshes the
// step rather than stacking weight.
func (e *Engine) Endorse(endorser, publisher PublisherID, step int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.endorsements[endorsementKey{endorser, publisher}] = endorsement{step: step}
}

// Tier classifies publisher given the current endorsement set and step.
func (e *Engine) Tier(publisher PublisherID, nowStep int64) Tier {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tierLocked(publisher, nowStep)
}

func (e *Engine) tierLocked(publisher PublisherID, nowStep int64) Tier {
	if _, ok := e.blocked[publisher]; ok {
		return Blocked
	}
	if _, ok := e.trusted[publisher]; ok {
		return Trusted
	}
	if _, muted := e.muted[publisher]; muted {
		return Muted
	}
	if e.scoreLocked(publisher, nowStep) >= knownThreshold {
		return Known
	}
	return Unknown
}

// Score computes publisher's aggregate endorsement weight at nowStep,
// summing only endorsements from currently-trusted endorsers and capping
// the result (spec §4.8 "Scoring").
func (e *Engine) Score(publisher PublisherID, nowStep int64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scoreLocked(publisher, nowStep)
}

func (e *Engine) scoreLocked(publisher PublisherID, nowStep int64) float64 {
	var total float64
	for key, end := range e.endorsements {
		if key.publisher != publisher {
			continue
		}
		if _, trusted := e.trusted[key.endorser]; !trusted {
			continue
		}
		total += weight(end.step, nowStep, e.decaySteps)
	}
	if total > scoreCap {
		total = scoreCap
	}
	return total
}

// weight implements the decay function from spec §4.8: max(0, 1 -
// (now_step - step) / decay_steps).
func weight(step, nowStep, decaySteps int64) float64 {
	if decaySteps <= 0 {
		return 0
	}
	age := nowStep - step
	w := 1 - float64(age)/float64(decaySteps)
	if w < 0 {
		return 0
	}
	return w
}

// Explain returns a deterministic breakdown of publisher's tier, score,
// and each trusted endorser's contribution, for UI surfacing.
func (e *Engine) Explain(publisher PublisherID, nowStep int64) Explanation {
	e.mu.Lock()
	defer e.mu.Unlock()

	var contributors []Contributor
	for key, end := range e.endorsements {
		if key.publisher != publisher {
			continue
		}
		if _, trusted := e.trusted[key.endorser]; !trusted {
			continue
		}
		w := weight(end.step, nowStep, e.decaySteps)
		if w <= 0 {
			continue
		}
		contributors = append(contributors, Contributor{Endorser: key.endorser, Weight: w})
	}
	sort.Slice(contributors, func(i, j int) bool {
		return contributors[i].Endorser < contributors[j].Endorser
	})

	return Explanation{
		Tier:         e.tierLocked(publisher, nowStep),
		Score:        e.scoreLocked(publisher, nowStep),
		Contributors: contributors,
	}
}

// EndorsementRecord is one durable (endorser, publisher, step) triple, as
// exported for persistence (spec §4.9).
type EndorsementRecord struct {
	Endorser  PublisherID
	Publisher PublisherID
	Step      int64
}

// TrustedSet returns every trusted publisher, in no particular order.
func (e *Engine) TrustedSet() []PublisherID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return keys(e.trusted)
}

// MutedSet returns every muted publisher.
func (e *Engine) MutedSet() []PublisherID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return keys(e.muted)
}

// BlockedSet returns every blocked publisher.
func (e *Engine) BlockedSet() []PublisherID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return keys(e.blocked)
}

// Endorsements returns every recorded endorsement.
func (e *Engine) Endorsements() []EndorsementRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]EndorsementRecord, 0, len(e.endorsements))
	for key, end := range e.endorsements {
		out = append(out, EndorsementRecord{Endorser: key.endorser, Publisher: key.publisher, Step: end.step})
	}
	return out
}

// LoadState replaces the engine's tier sets and endorsements wholesale,
// used when restoring from a persistence snapshot. Score decay
// parameters are unaffected.
func (e *Engine) LoadState(trusted, muted, blocked []PublisherID, endorsements []EndorsementRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.trusted = toSet(trusted)
	e.muted = toSet(muted)
	e.blocked = toSet(blocked)

	e.endorsements = make(map[endorsementKey]endorsement, len(endorsements))
	for _, rec := range endorsements {
		e.endorsements[endorsementKey{endorser: rec.Endorser, publisher: rec.Publisher}] = endorsement{step: rec.Step}
	}
}

func keys(set map[PublisherID]struct{}) []PublisherID {
	out := make([]PublisherID, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}

func toSet(ids []PublisherID) map[PublisherID]struct{} {
	set := make(map[PublisherID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
