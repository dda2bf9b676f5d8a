// Package lane presents a uniform transport contract to the VEIL
// runtime — send/recv/health_snapshot — and scores each lane's health so
// the runtime can rebalance fanout away from a failing transport.
//
// Grounded on johnjansen-torua's internal/coordinator/health_monitor.go:
// the same interval-driven health bookkeeping (per-target counters,
// consecutive-failure tracking, an onUnhealthy-style callback) recast
// from a boolean healthy/unhealthy check into the continuous score
// formula spec §4.7 defines.
package lane
