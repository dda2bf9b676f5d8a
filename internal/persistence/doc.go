// Package persistence implements VEIL's durable snapshot format: a
// self-describing binary record covering cache entries, tag
// subscriptions, and policy state (spec §4.9). Counters and lane health
// are deliberately excluded — they reset on restart.
//
// Grounded on johnjansen-torua's storage.Store interface (a narrow
// save/load contract the rest of the system depends on abstractly) and
// framed with the same length-prefixed big-endian layout as
// internal/codec, so a reader of the wire format only has to learn one
// convention.
package persistence
