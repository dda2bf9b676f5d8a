// Package tracker implements VEIL's reconstruction tracker: a per-object
// state machine that accumulates shard indices, requests missing ones
// after a cooldown, and drives FEC reconstruction once enough arrive.
//
// Grounded on johnjansen-torua's internal/coordinator health_monitor.go
// for its tick-driven state-transition style (explicit states, a single
// owning map, deterministic transition functions) combined with
// internal/fec for the actual reconstruct call.
package tracker
