// Package types defines the canonical in-memory model shared by every stage
// of the certificate pipeline: the normalized measurement set produced from a
// data-logger export, the per-timestamp readings built from it, and the test
// result with its compliance summary.
//
// Ownership: a MeasurementSet is immutable once normalized. A TestResult owns
// its Readings and Summary exclusively; the edit service returns a new value
// rather than mutating a shared one.
package types
