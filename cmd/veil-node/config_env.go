package main

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"

	"github.com/dreamware/veil/internal/fec"
	"github.com/dreamware/veil/internal/runtime"
)

// configFromEnv mirrors the teacher's cmd/node getenv/mustGetenv pattern,
// generalized to VEIL's option set (spec §6, §10). Every variable is
// optional; DefaultConfig's values stand in where unset.
func configFromEnv() (runtime.Config, error) {
	cfg := runtime.DefaultConfig()

	cfg.MaxCacheEntries = envInt("VEIL_MAX_CACHE_ENTRIES", cfg.MaxCacheEntries)
	cfg.FastFanout = envInt("VEIL_FAST_FANOUT", cfg.FastFanout)
	cfg.FallbackFanout = envInt("VEIL_FALLBACK_FANOUT", cfg.FallbackFanout)
	cfg.AdaptiveLaneScoring = envBool("VEIL_ADAPTIVE_LANE_SCORING", cfg.AdaptiveLaneScoring)
	cfg.MinimumHealthyLaneScore = envFloat("VEIL_MIN_HEALTHY_LANE_SCORE", cfg.MinimumHealthyLaneScore)
	cfg.EnableShardRequests = envBool("VEIL_ENABLE_SHARD_REQUESTS", cfg.EnableShardRequests)
	cfg.RequestFanout = envInt("VEIL_REQUEST_FANOUT", cfg.RequestFanout)
	cfg.RequestHopLimit = envInt("VEIL_REQUEST_HOP_LIMIT", cfg.RequestHopLimit)
	cfg.RequestCooldownMs = int64(envInt("VEIL_REQUEST_COOLDOWN_MS", int(cfg.RequestCooldownMs)))
	cfg.MaxForwardHops = envInt("VEIL_MAX_FORWARD_HOPS", cfg.MaxForwardHops)
	cfg.MaxSeenShardIDs = envInt("VEIL_MAX_SEEN_SHARD_IDS", cfg.MaxSeenShardIDs)
	cfg.SeenShardTTLMs = int64(envInt("VEIL_SEEN_SHARD_TTL_MS", int(cfg.SeenShardTTLMs)))
	cfg.LaneHealthEmitMs = int64(envInt("VEIL_LANE_HEALTH_EMIT_MS", int(cfg.LaneHealthEmitMs)))
	cfg.UnknownForwardFloor = envFloat("VEIL_UNKNOWN_FORWARD_FLOOR", cfg.UnknownForwardFloor)
	cfg.SnapshotSecs = envInt("VEIL_SNAPSHOT_SECS", cfg.SnapshotSecs)
	cfg.BucketJitterExtraLevels = envInt("VEIL_BUCKET_JITTER_EXTRA_LEVELS", cfg.BucketJitterExtraLevels)
	cfg.OpenRelay = envBool("VEIL_OPEN_RELAY", cfg.OpenRelay)
	cfg.EpochSeconds = int64(envInt("VEIL_EPOCH_SECONDS", int(cfg.EpochSeconds)))
	cfg.RVOverlapSeconds = int64(envInt("VEIL_RV_OVERLAP_SECONDS", int(cfg.RVOverlapSeconds)))

	if v := os.Getenv("VEIL_FEC_MODE"); v != "" {
		switch strings.ToLower(v) {
		case "systematic":
			cfg.FECMode = fec.Systematic
		case "hardened":
			cfg.FECMode = fec.Hardened
		}
	}

	if v := os.Getenv("VEIL_BLOCKED_PEERS"); v != "" {
		cfg.BlockedPeers = strings.Split(v, ",")
	}

	if v := os.Getenv("VEIL_DECRYPTION_KEY_HEX"); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return cfg, err
		}
		cfg.DecryptionKey = key
	}

	if t := os.Getenv("VEIL_TRUSTED_QUOTA"); t != "" {
		cfg.ForwardingQuotas.Trusted = envFloat("VEIL_TRUSTED_QUOTA", cfg.ForwardingQuotas.Trusted)
		cfg.ForwardingQuotas.Known = envFloat("VEIL_KNOWN_QUOTA", cfg.ForwardingQuotas.Known)
		cfg.ForwardingQuotas.Unknown = envFloat("VEIL_UNKNOWN_QUOTA", cfg.ForwardingQuotas.Unknown)
	}

	return cfg, cfg.Validate()
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
