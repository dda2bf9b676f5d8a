// Package runtime ties VEIL's packages into a single cooperative tick
// loop (spec §4.10): one call to Tick drives lane health, inbound
// dispatch, reconstruction, forwarding, and snapshotting, always in the
// same order, so every admitted shard is forwarded in the tick it
// arrived and every reconstructed object fires its hooks before the next
// inbound message is even read.
//
// # Architecture
//
//	┌───────────────────────────────────────────┐
//	│                  NODE                      │
//	├───────────────────────────────────────────┤
//	│                                             │
//	│  ┌───────────────┐   ┌───────────────────┐ │
//	│  │  Lane Manager │   │  Forwarding Engine │ │
//	│  │  fast/fallback│   │  subscribe/admit   │ │
//	│  │  health score │   │  tier-ordered send │ │
//	│  └───────┬───────┘   └─────────┬──────────┘ │
//	│          │                     │             │
//	│          ▼                     ▼             │
//	│  ┌───────────────┐   ┌───────────────────┐ │
//	│  │ Shard Cache   │   │ Reconstruction     │ │
//	│  │ content-addr  │   │ Tracker            │ │
//	│  │ rarity evict  │   │ COLLECTING..DONE   │ │
//	│  └───────────────┘   └───────────────────┘ │
//	│                                             │
//	│  ┌───────────────────────────────────────┐ │
//	│  │  Policy Engine: trust tiers, mutes,    │ │
//	│  │  blocks, endorsement decay             │ │
//	│  └───────────────────────────────────────┘ │
//	│                                             │
//	└───────────────────────────────────────────┘
//
// Grounded on johnjansen-torua's internal/coordinator, the teacher's
// central orchestration registry wired the same way: one struct holding
// every subsystem, a single entry point (there: HTTP handlers; here:
// Tick) that calls into them in a fixed order, and a hook/callback set
// standing in for torua's onUnhealthy-style notifications.
package runtime
