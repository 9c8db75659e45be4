// Package api implements the HTTP REST API for thermocert serve.
//
// New(deps) returns an http.Handler that serves:
//
//	GET   /api/v1/health                              result counts per status
//	POST  /api/v1/results                             upload one or more logger exports
//	GET   /api/v1/results                             all stored results (summaries only)
//	GET   /api/v1/results/{id}                        one result with its readings
//	GET   /api/v1/results/{id}/lethality              running F0 per sensor
//	PATCH /api/v1/results/{id}/readings/{index}       correct one sensor value
//	GET   /api/v1/alerts                              firing and recently resolved alerts
//	GET   /api/v1/snapshot                            results, alerts and generated_at
//	GET   /metrics                                    Prometheus text exposition
//
// Uploads are either multipart forms (any number of "file" parts) or a raw
// body named by the ?name= query parameter. ?category= overrides the
// configured test category for the whole upload.
//
// Numbers in responses carry display precision: two decimals for sensor
// temperatures, stability, uniformity and F0, one decimal for summary
// min/max/mean. Stored results keep full precision.
package api
