package runtime

import (
	"errors"
	"fmt"

	"github.com/dreamware/veil/internal/fec"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/chacha20poly1305"
)

// Config holds every recognized runtime option (spec §6 "Configuration").
// Zero-value Config is not directly usable; call DefaultConfig and
// override.
type Config struct {
	PollIntervalMs  int64
	MaxCacheEntries int

	// Logger receives the node's structured logs; nil falls back to
	// logrus.StandardLogger().
	Logger *logrus.Logger

	// RequiredSignedNamespaces lists namespaces that reject a reconstructed
	// object outright unless it carries the SIGNED flag (spec §6); a
	// present but invalid signature is already rejected earlier, by
	// codec.DecodeObject itself.
	RequiredSignedNamespaces map[uint16]struct{}

	FastFanout     int
	FallbackFanout int

	AdaptiveLaneScoring     bool
	MinimumHealthyLaneScore float64

	EnableShardRequests bool
	RequestFanout       int
	RequestHopLimit     int
	RequestCooldownMs   int64

	MaxForwardHops int

	MaxSeenShardIDs int
	SeenShardTTLMs  int64

	LaneHealthEmitMs int64

	ForwardingQuotas    ForwardingQuotas
	UnknownForwardFloor float64

	SnapshotSecs int

	BucketJitterExtraLevels int

	OpenRelay    bool
	BlockedPeers []string

	FECMode fec.Mode

	EpochSeconds     int64
	RVOverlapSeconds int64

	// DecryptionKey, when set, is a 32-byte XChaCha20-Poly1305 key used to
	// open reconstructed objects' nonce/ciphertext pair before on_payload
	// fires (spec §11). Left nil, objects still reconstruct and
	// OnReconstructed still fires, but on_payload is never called.
	DecryptionKey []byte
}

// ForwardingQuotas are fractional shares per policy tier; they must sum
// to 1 (spec §6). Validate checks the sum; the forwarding engine does not
// read them, so they do not limit how many shards each tier forwards.
type ForwardingQuotas struct {
	Trusted float64
	Known   float64
	Unknown float64
}

// DefaultConfig returns conservative defaults matching the values implied
// by spec §8's scenarios (e.g. minimum_healthy_lane_score = 0.2).
func DefaultConfig() Config {
	return Config{
		PollIntervalMs:          200,
		MaxCacheEntries:         10_000,
		FastFanout:              4,
		FallbackFanout:          2,
		AdaptiveLaneScoring:     true,
		MinimumHealthyLaneScore: 0.2,
		EnableShardRequests:     true,
		RequestFanout:           3,
		RequestHopLimit:         4,
		RequestCooldownMs:       2_000,
		MaxForwardHops:          6,
		MaxSeenShardIDs:         10_000,
		SeenShardTTLMs:          3_600_000,
		LaneHealthEmitMs:        1_000,
		ForwardingQuotas:        ForwardingQuotas{Trusted: 0.5, Known: 0.3, Unknown: 0.2},
		UnknownForwardFloor:     0.2,
		SnapshotSecs:            0,
		BucketJitterExtraLevels: 0,
		FECMode:                 fec.Systematic,
		EpochSeconds:            86_400,
		RVOverlapSeconds:        3_600,
	}
}

// Validate enforces spec §7's "Configuration" error class: invalid
// quotas, negative bounds, out-of-range scores and a wrong-sized key are
// construction-time fatal errors. Config holds no peer list (peers are
// set later with SetForwardPeers), so a non-zero fanout with no peers is
// not rejected here.
func (c Config) Validate() error {
	sum := c.ForwardingQuotas.Trusted + c.ForwardingQuotas.Known + c.ForwardingQuotas.Unknown
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("runtime: forwarding quotas must sum to 1, got %f", sum)
	}
	if c.FastFanout < 0 || c.FallbackFanout < 0 {
		return errors.New("runtime: fanout bounds must be non-negative")
	}
	if c.MaxForwardHops < 0 {
		return errors.New("runtime: max_forward_hops must be non-negative")
	}
	if c.RequestFanout < 0 || c.RequestHopLimit < 0 || c.RequestCooldownMs < 0 {
		return errors.New("runtime: request tuning parameters must be non-negative")
	}
	if c.MaxSeenShardIDs < 0 || c.SeenShardTTLMs < 0 {
		return errors.New("runtime: seen-set bounds must be non-negative")
	}
	if c.UnknownForwardFloor < 0 || c.UnknownForwardFloor > 1 {
		return errors.New("runtime: unknown_forward_floor must be within [0,1]")
	}
	if c.MinimumHealthyLaneScore < 0 || c.MinimumHealthyLaneScore > 1 {
		return errors.New("runtime: minimum_healthy_lane_score must be within [0,1]")
	}
	if c.EpochSeconds <= 0 {
		return errors.New("runtime: epoch_seconds must be positive")
	}
	if len(c.DecryptionKey) != 0 && len(c.DecryptionKey) != chacha20poly1305.KeySize {
		return fmt.Errorf("runtime: decryption_key must be %d bytes, got %d", chacha20poly1305.KeySize, len(c.DecryptionKey))
	}
	return nil
}
