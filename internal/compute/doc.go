// Package compute derives the compliance statistics of a test from its
// Readings.
//
// verdict.go provides the pure Verdict(VerdictInput, Limits) function. Values
// are compared at the two-decimal precision printed on the certificate, so a
// stability of exactly 1.00 °C passes a 1.0 °C limit even when floating-point
// subtraction left it at 1.0000000000000002.
//
// lethality.go accumulates F0 per sensor as a forward sum over consecutive
// readings: Δt × 10^((T − Tref)/z), counted only where T ≥ the lethality floor
// and Δt is positive. Issued certificates depend on this exact summation.
//
// engine.go provides Engine, which holds the active Limits and produces a
// types.Summary. Limits can be swapped at runtime with SetLimits.
package compute
