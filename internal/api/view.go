package api

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/internal/store"
	"github.com/thermocert/thermocert/pkg/types"
)

// Display precision.
const (
	valuePlaces   = 2 // sensor temperatures, stability, uniformity, F0
	summaryPlaces = 1 // summary min/max/mean
)

func round(v float64, places int) float64 {
	r, err := stats.Round(v, places)
	if err != nil {
		return v
	}
	return r
}

func roundPtr(v *float64, places int) *float64 {
	if v == nil {
		return nil
	}
	return types.Float(round(*v, places))
}

func roundMap(m map[string]float64, places int) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = round(v, places)
	}
	return out
}

func toSummary(e *store.Entry) ResultSummary {
	res := e.Result
	return ResultSummary{
		ID:            res.ID,
		Name:          res.Name,
		Category:      res.Category,
		SetPoint:      res.SetPoint,
		Source:        res.Source,
		Status:        res.Summary.Status,
		ReadingCount:  len(res.Readings),
		Sensors:       len(res.Sensors),
		SkippedRows:   res.SkippedRows(),
		CoercedValues: res.CoercedValues(),
		EditedValues:  res.EditedValues(),
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// toResultResponse renders e with display rounding and diagnostics derived
// from limits.
func toResultResponse(e *store.Entry, limits config.Limits) ResultResponse {
	res := e.Result
	readings := make([]ReadingResponse, len(res.Readings))
	for i := range res.Readings {
		r := &res.Readings[i]
		temps := make(map[string]*float64, len(r.Temperatures))
		for s, v := range r.Temperatures {
			temps[s] = roundPtr(v, valuePlaces)
		}
		readings[i] = ReadingResponse{
			Index:             i,
			Timestamp:         r.Timestamp,
			TimeOffsetMinutes: r.TimeOffsetMinutes,
			Temperatures:      temps,
			Min:               roundPtr(r.Min, valuePlaces),
			Max:               roundPtr(r.Max, valuePlaces),
			Mean:              roundPtr(r.Mean, valuePlaces),
		}
	}

	s := &res.Summary
	caveats := res.Caveats
	if caveats == nil {
		caveats = []types.Caveat{}
	}
	return ResultResponse{
		ResultSummary:  toSummary(e),
		StartTimestamp: res.StartTimestamp,
		SensorIDs:      res.Sensors,
		SensorLabels:   res.SensorLabels,
		Metadata:       res.Metadata,
		Readings:       readings,
		Summary: SummaryResponse{
			Min:          roundPtr(s.Min, summaryPlaces),
			Max:          roundPtr(s.Max, summaryPlaces),
			Mean:         roundPtr(s.Mean, summaryPlaces),
			Stability:    roundMap(s.Stability, valuePlaces),
			Uniformity:   roundPtr(s.Uniformity, valuePlaces),
			Lethality:    roundMap(s.Lethality, valuePlaces),
			MinLethality: roundPtr(s.MinLethality, valuePlaces),
			Status:       s.Status,
		},
		Caveats:     caveats,
		Diagnostics: computeDiagnostics(res, limits),
	}
}
