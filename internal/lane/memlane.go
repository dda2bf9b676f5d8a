package lane

import "errors"

// ErrMemLaneRejected is returned by MemLane.Send when the lane is
// configured to fail every send, used to drive lane-failover scenarios
// in tests (spec §8 scenario S4).
var ErrMemLaneRejected = errors.New("lane: memlane rejects send")

type memMessage struct {
	peer string
	data []byte
}

// MemLane is an in-memory Adapter used by tests: Send appends to the
// inbox of the MemLane it is connected to, which that lane's Recv drains,
// simulating a two-node exchange. Send on an unconnected lane returns an
// error.
type MemLane struct {
	peer    *MemLane
	inbox   []memMessage
	failing bool
}

// NewMemLane constructs an unconnected lane. Use Connect to wire two
// MemLanes together so sends on one surface as receives on the other.
func NewMemLane() *MemLane {
	return &MemLane{}
}

// Connect wires a and b so that each one's Send becomes the other's
// Recv.
func Connect(a, b *MemLane) {
	a.peer = b
	b.peer = a
}

// SetFailing toggles whether Send always returns ErrMemLaneRejected,
// simulating a transport outage.
func (m *MemLane) SetFailing(failing bool) { m.failing = failing }

// Send implements Adapter.
func (m *MemLane) Send(peer string, data []byte) error {
	if m.failing {
		return ErrMemLaneRejected
	}
	if m.peer == nil {
		return errors.New("lane: memlane has no connected peer")
	}
	cp := append([]byte(nil), data...)
	m.peer.inbox = append(m.peer.inbox, memMessage{peer: peer, data: cp})
	return nil
}

// Recv implements Adapter.
func (m *MemLane) Recv() (peer string, data []byte, ok bool) {
	if len(m.inbox) == 0 {
		return "", nil, false
	}
	msg := m.inbox[0]
	m.inbox = m.inbox[1:]
	return msg.peer, msg.data, true
}
