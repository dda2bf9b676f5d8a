package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTierTrustedOverridesUnknown(t *testing.T) {
	e := New()
	e.Trust("alice")
	require.Equal(t, Trusted, e.Tier("alice", 0))
}

func TestTierBlockedOverridesTrusted(t *testing.T) {
	e := New()
	e.Trust("alice")
	e.Block("alice")
	require.Equal(t, Blocked, e.Tier("alice", 0))
}

func TestTierMutedWhenNotEndorsedEnough(t *testing.T) {
	e := New()
	e.Mute("bob")
	require.Equal(t, Muted, e.Tier("bob", 0))
}

func TestTierUnknownByDefault(t *testing.T) {
	e := New()
	require.Equal(t, Unknown, e.Tier("nobody", 0))
}

func TestTierKnownViaEndorsement(t *testing.T) {
	e := New()
	e.Trust("alice")
	e.Endorse("alice", "carol", 0)
	require.Equal(t, Known, e.Tier("carol", 0))
}

func TestEndorsementFromUntrustedDoesNotCount(t *testing.T) {
	e := New()
	// dave is not trusted, so his endorsement of carol contributes nothing.
	e.Endorse("dave", "carol", 0)
	require.Equal(t, Unknown, e.Tier("carol", 0))
	require.Equal(t, float64(0), e.Score("carol", 0))
}

func TestScoreDecaysOverSteps(t *testing.T) {
	e := New()
	e.Trust("alice")
	e.Endorse("alice", "carol", 0)

	full := e.Score("carol", 0)
	require.Equal(t, 1.0, full)

	halfway := e.Score("carol", 5_000)
	require.InDelta(t, 0.5, halfway, 1e-9)

	expired := e.Score("carol", 10_000)
	require.Equal(t, float64(0), expired)

	pastExpiry := e.Score("carol", 50_000)
	require.Equal(t, float64(0), pastExpiry)
}

func TestScoreIsCapped(t *testing.T) {
	e := New()
	for i := 0; i < 50; i++ {
		endorser := PublisherID(string(rune('a' + i%26)))
		e.Trust(endorser)
		e.Endorse(endorser, "carol", 0)
	}
	require.LessOrEqual(t, e.Score("carol", 0), scoreCap)
}

func TestEndorsementDeduplicatesPerPair(t *testing.T) {
	e := New()
	e.Trust("alice")
	e.Endorse("alice", "carol", 0)
	e.Endorse("alice", "carol", 100) // refresh, not stack
	require.InDelta(t, 1.0, e.Score("carol", 100), 1e-9)
}

func TestExplainReturnsSortedContributors(t *testing.T) {
	e := New()
	e.Trust("zed")
	e.Trust("alice")
	e.Endorse("zed", "carol", 0)
	e.Endorse("alice", "carol", 0)

	explanation := e.Explain("carol", 0)
	require.Equal(t, Known, explanation.Tier)
	require.Len(t, explanation.Contributors, 2)
	require.Equal(t, PublisherID("alice"), explanation.Contributors[0].Endorser)
	require.Equal(t, PublisherID("zed"), explanation.Contributors[1].Endorser)
}

func TestExplainIsDeterministic(t *testing.T) {
	e := New()
	e.Trust("alice")
	e.Endorse("alice", "carol", 0)

	a := e.Explain("carol", 10)
	b := e.Explain("carol", 10)
	require.Equal(t, a, b)
}

func TestIsBlocked(t *testing.T) {
	e := New()
	require.False(t, e.IsBlocked("alice"))
	e.Block("alice")
	require.True(t, e.IsBlocked("alice"))
	e.Unblock("alice")
	require.False(t, e.IsBlocked("alice"))
}
