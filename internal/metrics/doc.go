// Package metrics keeps process counters for ingestion and edits and renders
// them in the Prometheus text exposition format.
//
// Registry implements ingest.Observer. Families are built as client_model
// MetricFamily values and written with expfmt, so the output is whatever a
// Prometheus scraper expects without pulling in client_golang.
package metrics
