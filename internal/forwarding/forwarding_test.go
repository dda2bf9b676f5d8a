package forwarding

import (
	"testing"

	"github.com/dreamware/veil/internal/codec"
	"github.com/dreamware/veil/internal/policy"
	"github.com/stretchr/testify/require"
)

func tag(b byte) codec.Tag {
	var tg codec.Tag
	tg[0] = b
	return tg
}

func hash(b byte) [32]byte {
	var h [32]byte
	h[0] = b
	return h
}

func TestAdmitRejectsUnsubscribedTag(t *testing.T) {
	e := New(DefaultConfig(), policy.New())
	ok := e.Admit(tag(1), hash(1), "", 0)
	require.False(t, ok)
}

func TestAdmitAcceptsSubscribedTag(t *testing.T) {
	e := New(DefaultConfig(), policy.New())
	e.Subscribe(tag(1))
	ok := e.Admit(tag(1), hash(1), "", 0)
	require.True(t, ok)
}

// TestDuplicateSuppression pins spec §8 scenario S2: repeated shards are
// only admitted once.
func TestDuplicateSuppression(t *testing.T) {
	e := New(DefaultConfig(), policy.New())
	e.Subscribe(tag(1))

	admitted := 0
	for i := 0; i < 10; i++ {
		if e.Admit(tag(1), hash(1), "", 0) {
			admitted++
		}
	}
	require.Equal(t, 1, admitted)
}

func TestAdmitRejectsBlockedPublisher(t *testing.T) {
	pol := policy.New()
	pol.Block("evil")
	e := New(DefaultConfig(), pol)
	e.Subscribe(tag(1))

	ok := e.Admit(tag(1), hash(1), "evil", 0)
	require.False(t, ok)
}

func TestOpenRelayBypassesSubscriptionFilter(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenRelay = true
	e := New(cfg, policy.New())
	ok := e.Admit(tag(99), hash(1), "", 0)
	require.True(t, ok)
}

func TestOpenRelayStillHonorsBlockList(t *testing.T) {
	cfg := DefaultConfig()
	cfg.OpenRelay = true
	pol := policy.New()
	pol.Block("evil")
	e := New(cfg, pol)
	ok := e.Admit(tag(99), hash(1), "evil", 0)
	require.False(t, ok)
}

// TestHopLimitStopsForwarding pins spec §8 property 8.
func TestHopLimitStopsForwarding(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxForwardHops = 3
	e := New(cfg, policy.New())
	peers := []Peer{"a", "b", "c"}

	forwards := e.SelectForwards(peers, "", 3, 0)
	require.Empty(t, forwards)
}

func TestSelectForwardsExcludesSourcePeer(t *testing.T) {
	e := New(DefaultConfig(), policy.New())
	peers := []Peer{"a", "b", "c"}
	forwards := e.SelectForwards(peers, "b", 0, 0)
	for _, f := range forwards {
		require.NotEqual(t, Peer("b"), f.Peer)
	}
}

func TestSelectForwardsRespectsLaneFanoutBounds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FastFanout = 2
	cfg.FallbackFanout = 1
	cfg.UnknownFloorRatio = 0
	e := New(cfg, policy.New())
	peers := []Peer{"a", "b", "c", "d", "e"}

	forwards := e.SelectForwards(peers, "", 0, 0)
	require.Len(t, forwards, 3)

	fast, fallback := 0, 0
	for _, f := range forwards {
		if f.Lane == FastLane {
			fast++
		} else {
			fallback++
		}
	}
	require.Equal(t, 2, fast)
	require.Equal(t, 1, fallback)
}

func TestTrustedPeersOrderedBeforeUnknown(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FastFanout = 1
	cfg.FallbackFanout = 0
	cfg.UnknownFloorRatio = 0
	pol := policy.New()
	pol.Trust("trusted-peer")
	e := New(cfg, pol)

	peers := []Peer{"unknown-peer", "trusted-peer"}
	forwards := e.SelectForwards(peers, "", 0, 0)
	require.Len(t, forwards, 1)
	require.Equal(t, Peer("trusted-peer"), forwards[0].Peer)
}

func TestUnknownFloorReservesCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FastFanout = 2
	cfg.FallbackFanout = 2
	cfg.UnknownFloorRatio = 1.0 // reserve everything for unknown
	pol := policy.New()
	pol.Trust("trusted-peer")
	e := New(cfg, pol)

	peers := []Peer{"trusted-peer", "unknown-1", "unknown-2", "unknown-3"}
	forwards := e.SelectForwards(peers, "", 0, 0)

	unknownCount := 0
	for _, f := range forwards {
		if f.Peer != "trusted-peer" {
			unknownCount++
		}
	}
	require.Greater(t, unknownCount, 0, "floor should guarantee unknown peers get slots")
}

func TestSeenSetEvictsOldestWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeenSetMaxEntries = 2
	cfg.SeenSetTTLTicks = 1_000_000
	e := New(cfg, policy.New())
	e.Subscribe(tag(1))

	require.True(t, e.Admit(tag(1), hash(1), "", 0))
	require.True(t, e.Admit(tag(1), hash(2), "", 0))
	require.True(t, e.Admit(tag(1), hash(3), "", 0)) // evicts hash(1)

	// hash(1) should be admittable again since it was evicted.
	require.True(t, e.Admit(tag(1), hash(1), "", 0))
}

func TestSeenSetExpiresByTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeenSetTTLTicks = 5
	e := New(cfg, policy.New())
	e.Subscribe(tag(1))

	require.True(t, e.Admit(tag(1), hash(1), "", 0))
	require.False(t, e.Admit(tag(1), hash(1), "", 1)) // still within TTL

	require.True(t, e.Admit(tag(1), hash(1), "", 10)) // TTL elapsed
}
