// Package policy implements VEIL's local web-of-trust: tiering of
// publishers (blocked/trusted/known/muted/unknown) plus a deterministic
// explanation API for UI surfacing.
//
// Grounded on johnjansen-torua's internal/coordinator registry style
// (mutex-guarded maps, small composable methods) with the endorsement
// decay math generalized from nothing in the pack directly — recorded in
// DESIGN.md as the one genuinely novel piece of scoring arithmetic this
// module needed, since no example repo implements web-of-trust scoring.
package policy
