package lane

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTCPLaneSendRecvRoundTrip(t *testing.T) {
	a, err := NewTCPLane("127.0.0.1:0")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewTCPLane("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Send(b.listener.Addr().String(), []byte("hello veil")))

	var peer string
	var data []byte
	var ok bool
	require.Eventually(t, func() bool {
		peer, data, ok = b.Recv()
		return ok
	}, time.Second, time.Millisecond)

	// peer is the accepted connection's ephemeral source address, not a's
	// listen address; VEIL identifies senders by what they forward, not by
	// socket identity, so only non-emptiness matters here.
	require.NotEmpty(t, peer)
	require.Equal(t, []byte("hello veil"), data)
}

func TestTCPLaneHealthSnapshotTracksOutcomes(t *testing.T) {
	a, err := NewTCPLane("")
	require.NoError(t, err)
	defer a.Close()
	b, err := NewTCPLane("127.0.0.1:0")
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Send(b.listener.Addr().String(), []byte("x")))
	require.Error(t, a.Send("127.0.0.1:1", []byte("x")))

	snap := a.HealthSnapshot()
	require.Equal(t, uint64(1), snap.OutboundSendOK)
	require.Equal(t, uint64(1), snap.OutboundSendErr)
}
