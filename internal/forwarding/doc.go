// Package forwarding implements VEIL's admission, deduplication, and
// peer-selection engine (spec §4.6): the layer between a received shard
// and the lanes it gets re-sent on.
//
// Grounded on johnjansen-torua's internal/coordinator registry style for
// the bounded, mutex-guarded seen-shard set, and on
// wyf-ACCEPT-eth2030's cell_gossip_scorer.go for the tiered,
// floor-reserving peer-selection approach (trusted-first ordering with a
// guaranteed minimum slice for the lowest tier so discovery doesn't
// collapse under policy stress).
package forwarding
