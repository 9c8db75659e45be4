// Package ingest runs the normalize, series and compute stages for uploaded
// files and returns computed TestResults.
//
// Process handles one file. Batch handles many with bounded parallelism;
// each file is independent, so a FormatError in one is reported in its
// Outcome and never aborts the others. Outcomes keep the input order.
package ingest
