// Package edit applies a single manual correction to a computed test.
//
// Apply never modifies its input. It returns a copy in which one Reading holds
// the new value, that Reading's row aggregates are refreshed, and the whole
// Summary is recomputed. Lethality is path-dependent, so every F0 partial sum
// is re-derived rather than patched.
package edit
