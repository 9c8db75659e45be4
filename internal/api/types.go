package api

import (
	"encoding/json"

	"github.com/thermocert/thermocert/internal/alerts"
	"github.com/thermocert/thermocert/pkg/types"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	ResultCount        int `json:"result_count"`
	CompliantCount     int `json:"compliant_count"`
	NonCompliantCount  int `json:"non_compliant_count"`
	NotApplicableCount int `json:"not_applicable_count"`
	AlertCount         int `json:"alert_count"`
}

// ResultSummary is one entry of GET /api/v1/results.
type ResultSummary struct {
	ID            string           `json:"id"`
	Name          string           `json:"name"`
	Category      types.Category   `json:"category"`
	SetPoint      string           `json:"set_point,omitempty"`
	Source        types.Provenance `json:"source"`
	Status        types.Status     `json:"status"`
	ReadingCount  int              `json:"reading_count"`
	Sensors       int              `json:"sensors"`
	SkippedRows   int              `json:"skipped_rows"`
	CoercedValues int              `json:"coerced_values"`
	EditedValues  int              `json:"edited_values"`
	CreatedAt     string           `json:"created_at"` // RFC3339
	UpdatedAt     string           `json:"updated_at"` // RFC3339
}

// ResultResponse is a full result as returned by GET /api/v1/results/{id},
// the upload endpoint and the edit endpoint.
type ResultResponse struct {
	ResultSummary
	StartTimestamp int64             `json:"start_timestamp"`
	SensorIDs      []string          `json:"sensor_ids"`
	SensorLabels   []string          `json:"sensor_labels,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Readings       []ReadingResponse `json:"readings"`
	Summary        SummaryResponse   `json:"summary"`
	Caveats        []types.Caveat    `json:"caveats"`
	Diagnostics    []DiagnosticHint  `json:"diagnostics"`
}

// ReadingResponse is one row of a result. A null temperature is a missing value.
type ReadingResponse struct {
	Index             int                 `json:"index"`
	Timestamp         int64               `json:"timestamp"`
	TimeOffsetMinutes float64             `json:"time_offset_minutes"`
	Temperatures      map[string]*float64 `json:"temperatures"`
	Min               *float64            `json:"min"`
	Max               *float64            `json:"max"`
	Mean              *float64            `json:"mean"`
}

// SummaryResponse is the compliance summary of a result.
type SummaryResponse struct {
	Min          *float64           `json:"min"`
	Max          *float64           `json:"max"`
	Mean         *float64           `json:"mean"`
	Stability    map[string]float64 `json:"stability"`
	Uniformity   *float64           `json:"uniformity"`
	Lethality    map[string]float64 `json:"lethality,omitempty"`
	MinLethality *float64           `json:"min_lethality,omitempty"`
	Status       types.Status       `json:"status"`
}

// LethalityResponse is the payload for GET /api/v1/results/{id}/lethality.
type LethalityResponse struct {
	ID      string               `json:"id"`
	Offsets []float64            `json:"time_offset_minutes"`
	Series  map[string][]float64 `json:"series"`
}

// UploadResponse is the payload for POST /api/v1/results. A file that fails
// appears in Errors and does not affect the other files of the upload.
type UploadResponse struct {
	Results []ResultResponse `json:"results"`
	Errors  []FileError      `json:"errors"`
}

// FileError describes one rejected input file.
type FileError struct {
	File    string `json:"file"`
	Element string `json:"element,omitempty"`
	Error   string `json:"error"`
}

// editRequest is the body of PATCH /api/v1/results/{id}/readings/{index}.
// "value" is required; null clears the reading.
type editRequest struct {
	Sensor string          `json:"sensor"`
	Value  json.RawMessage `json:"value"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket broadcast.
type SnapshotResponse struct {
	Results     []ResultSummary `json:"results"`
	Alerts      []*alerts.Alert `json:"alerts"`
	GeneratedAt string          `json:"generated_at"` // RFC3339
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
