package lane

import (
	"math"

	"github.com/sirupsen/logrus"
)

// Counters are the cumulative, per-lane observations the health score is
// computed from (spec §4.7, §6 "Lane health snapshot").
type Counters struct {
	OutboundQueued    uint64
	OutboundSendOK    uint64
	OutboundSendErr   uint64
	InboundReceived   uint64
	InboundDropped    uint64
	ReconnectAttempts uint64
}

// Adapter is the lane contract every transport implements (spec §4.7).
// Send and Recv must never block the runtime's tick.
type Adapter interface {
	Send(peer string, data []byte) error
	Recv() (peer string, data []byte, ok bool)
}

// HealthReportingAdapter is implemented by adapters that track their own
// counters; when absent, the Manager synthesizes them from observed
// Send/Recv outcomes.
type HealthReportingAdapter interface {
	Adapter
	HealthSnapshot() Counters
}

type laneState struct {
	name     string
	adapter  Adapter
	counters Counters
	score    float64
}

// Manager owns every registered lane, synthesizes or collects its
// counters each tick, and computes the health score that drives adaptive
// fanout rebalancing (spec §4.7).
type Manager struct {
	lanes           map[string]*laneState
	order           []string
	minHealthyScore float64
	log             *logrus.Logger
}

// NewManager constructs a lane manager. minHealthyScore is the threshold
// below which the runtime shifts fanout shares toward the complementary
// lane.
func NewManager(minHealthyScore float64) *Manager {
	return &Manager{
		lanes:           make(map[string]*laneState),
		minHealthyScore: minHealthyScore,
		log:             logrus.StandardLogger(),
	}
}

// SetLogger overrides the logger used for lane health transitions; nil
// restores logrus.StandardLogger().
func (m *Manager) SetLogger(l *logrus.Logger) {
	if l == nil {
		l = logrus.StandardLogger()
	}
	m.log = l
}

// Register adds a named lane. Conventionally "fast" and "fallback" are
// the two lanes the runtime rebalances between, but the manager itself
// is agnostic to lane names.
func (m *Manager) Register(name string, adapter Adapter) {
	if _, exists := m.lanes[name]; !exists {
		m.order = append(m.order, name)
	}
	m.lanes[name] = &laneState{name: name, adapter: adapter, score: 1.0}
}

// Names returns every registered lane name, in registration order.
func (m *Manager) Names() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Send issues a send on the named lane and records the outcome toward
// that lane's synthesized counters.
func (m *Manager) Send(name, peer string, data []byte) error {
	ls, ok := m.lanes[name]
	if !ok {
		return ErrUnknownLane(name)
	}
	err := ls.adapter.Send(peer, data)
	if err != nil {
		ls.counters.OutboundSendErr++
	} else {
		ls.counters.OutboundSendOK++
	}
	return err
}

// Recv polls the named lane once, recording an inbound-received counter
// on success.
func (m *Manager) Recv(name string) (peer string, data []byte, ok bool) {
	ls, exists := m.lanes[name]
	if !exists {
		return "", nil, false
	}
	peer, data, ok = ls.adapter.Recv()
	if ok {
		ls.counters.InboundReceived++
	}
	return
}

// RecordDrop notes an inbound message dropped on the named lane (e.g.
// malformed or unsubscribed), feeding the inbound-drop-ratio term of the
// health score.
func (m *Manager) RecordDrop(name string) {
	if ls, ok := m.lanes[name]; ok {
		ls.counters.InboundDropped++
	}
}

// RecordReconnect notes a reconnect attempt on the named lane.
func (m *Manager) RecordReconnect(name string) {
	if ls, ok := m.lanes[name]; ok {
		ls.counters.ReconnectAttempts++
	}
}

// Tick refreshes every lane's counters (pulling from the adapter's own
// health_snapshot when available) and recomputes scores. Call once per
// runtime tick, per spec §4.10 step 1.
func (m *Manager) Tick() {
	for _, ls := range m.lanes {
		if hr, ok := ls.adapter.(HealthReportingAdapter); ok {
			ls.counters = hr.HealthSnapshot()
		}
		prev := ls.score
		ls.score = computeScore(ls.counters)
		m.logHealthTransition(ls, prev)
	}
}

// logHealthTransition emits an info-level log the tick a lane's score
// crosses the healthy threshold in either direction; it is silent while
// the lane stays on one side of the threshold.
func (m *Manager) logHealthTransition(ls *laneState, prev float64) {
	wasHealthy := prev >= m.minHealthyScore
	isHealthy := ls.score >= m.minHealthyScore
	if wasHealthy == isHealthy {
		return
	}
	if isHealthy {
		m.log.WithField("lane", ls.name).WithField("score", ls.score).Info("lane recovered above health threshold")
		return
	}
	m.log.WithField("lane", ls.name).WithField("score", ls.score).Info("lane degraded below threshold, rebalancing")
}

// computeScore implements spec §4.7's health formula:
// send_ok_ratio x (1 - inbound_drop_ratio) x (1 - min(0.5, reconnect_attempts/10)).
func computeScore(c Counters) float64 {
	sendTotal := c.OutboundSendOK + c.OutboundSendErr
	sendOKRatio := 1.0
	if sendTotal > 0 {
		sendOKRatio = float64(c.OutboundSendOK) / float64(sendTotal)
	}
	inboundTotal := c.InboundReceived + c.InboundDropped
	dropRatio := 0.0
	if inboundTotal > 0 {
		dropRatio = float64(c.InboundDropped) / float64(inboundTotal)
	}
	reconnectPenalty := math.Min(0.5, float64(c.ReconnectAttempts)/10)

	score := sendOKRatio * (1 - dropRatio) * (1 - reconnectPenalty)
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// Score returns the most recently computed score for a lane, or 0 if the
// lane is unknown.
func (m *Manager) Score(name string) float64 {
	if ls, ok := m.lanes[name]; ok {
		return ls.score
	}
	return 0
}

// Counters returns the most recently observed counters for a lane.
func (m *Manager) Counters(name string) Counters {
	if ls, ok := m.lanes[name]; ok {
		return ls.counters
	}
	return Counters{}
}

// FanoutShares computes the per-lane forward counts for this tick,
// shifting capacity away from "fast" toward "fallback" (and vice versa)
// as their scores diverge from healthy (spec §4.7 "Health score").
// Outside the "fast"/"fallback" pair this is a no-op: other lanes keep
// their default share.
func (m *Manager) FanoutShares(fastDefault, fallbackDefault int) (fast, fallback int) {
	fast, fallback = fastDefault, fallbackDefault
	fastLane, hasFast := m.lanes["fast"]
	fallbackLane, hasFallback := m.lanes["fallback"]
	if !hasFast || !hasFallback {
		return
	}

	if fastLane.score < m.minHealthyScore {
		shiftFraction := 1.0
		if m.minHealthyScore > 0 {
			shiftFraction = 1 - fastLane.score/m.minHealthyScore
		}
		if shiftFraction > 1 {
			shiftFraction = 1
		}
		shifted := int(math.Round(float64(fastDefault) * shiftFraction))
		fast = fastDefault - shifted
		fallback = fallbackDefault + shifted
		return
	}
	if fallbackLane.score < m.minHealthyScore {
		shiftFraction := 1.0
		if m.minHealthyScore > 0 {
			shiftFraction = 1 - fallbackLane.score/m.minHealthyScore
		}
		if shiftFraction > 1 {
			shiftFraction = 1
		}
		shifted := int(math.Round(float64(fallbackDefault) * shiftFraction))
		fallback = fallbackDefault - shifted
		fast = fastDefault + shifted
	}
	return
}

// ErrUnknownLane is returned by Send when the named lane was never
// registered.
type ErrUnknownLane string

func (e ErrUnknownLane) Error() string { return "lane: unknown lane " + string(e) }
