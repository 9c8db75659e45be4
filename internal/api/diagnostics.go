package api

import (
	"fmt"
	"sort"

	"github.com/thermocert/thermocert/internal/compute"
	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/pkg/types"
)

// DiagnosticHint is one human-readable insight about a test result. The UI
// shows these as chips on the result card; Detail is shown on click.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short chip label.
	Title string `json:"title"`
	// Detail is the full explanation.
	Detail string `json:"detail"`
	// Value is an optional number associated with this hint.
	Value *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// computeDiagnostics derives hints from a result, ordered critical first,
// then warnings, then info.
func computeDiagnostics(res *types.TestResult, l config.Limits) []DiagnosticHint {
	var hints []DiagnosticHint
	s := &res.Summary

	// ── Undecidable ──────────────────────────────────────────────────────────
	if s.Status == types.StatusNA {
		detail := "No reading has values from at least two sensors, so uniformity " +
			"cannot be measured and no verdict is possible. Check that the channel " +
			"columns of the export were recognized and carry numeric values."
		if res.Category == types.CategorySterilization && s.MinLethality == nil {
			detail = "No sensor has a value in any reading, so F0 cannot be " +
				"accumulated and no verdict is possible."
		}
		hints = append(hints, DiagnosticHint{
			Key:    "not_applicable",
			Level:  "warning",
			Title:  "No verdict",
			Detail: detail,
		})
	}

	// ── Limits ───────────────────────────────────────────────────────────────
	switch res.Category {
	case types.CategorySterilization:
		for _, sensor := range res.Sensors {
			f0, ok := s.Lethality[sensor]
			if !ok || !compute.FallsShort(f0, l.MinLethality) {
				continue
			}
			v := round(f0, valuePlaces)
			hints = append(hints, DiagnosticHint{
				Key:   "lethality_" + sensor,
				Level: "critical",
				Title: fmt.Sprintf("%s F0 %.2f", sensor, v),
				Detail: fmt.Sprintf(
					"%s accumulated F0 %.2f min against a required %.2f min. "+
						"The coldest point of the load did not receive enough lethality; "+
						"extend the exposure phase or check the sensor placement.",
					sensor, v, l.MinLethality),
				Value: &v,
			})
		}
	default:
		for _, sensor := range res.Sensors {
			st, ok := s.Stability[sensor]
			if !ok || !compute.Exceeds(st, l.Stability) {
				continue
			}
			v := round(st, valuePlaces)
			hints = append(hints, DiagnosticHint{
				Key:   "stability_" + sensor,
				Level: "critical",
				Title: fmt.Sprintf("%s drifted %.2f °C", sensor, v),
				Detail: fmt.Sprintf(
					"%s varied by %.2f °C over the run, above the %.2f °C stability limit. "+
						"Look for door openings, defrost cycles or a sensor touching a wall.",
					sensor, v, l.Stability),
				Value: &v,
			})
		}
		if s.Uniformity != nil && compute.Exceeds(*s.Uniformity, l.Uniformity) {
			v := round(*s.Uniformity, valuePlaces)
			hints = append(hints, DiagnosticHint{
				Key:   "uniformity",
				Level: "critical",
				Title: fmt.Sprintf("Spread %.2f °C", v),
				Detail: fmt.Sprintf(
					"At its worst reading the sensors disagreed by %.2f °C, above the "+
						"%.2f °C uniformity limit. The chamber has a hot or cold spot.",
					v, l.Uniformity),
				Value: &v,
			})
		}
	}

	// ── Silent sensors ───────────────────────────────────────────────────────
	for _, sensor := range res.Sensors {
		if _, ok := s.Stability[sensor]; ok {
			continue
		}
		hints = append(hints, DiagnosticHint{
			Key:   "silent_" + sensor,
			Level: "warning",
			Title: fmt.Sprintf("%s has no data", sensor),
			Detail: fmt.Sprintf(
				"%s has no value in any reading and is excluded from every statistic. "+
					"If the sensor was installed, its channel may be disconnected.", sensor),
		})
	}

	// ── Data quality ─────────────────────────────────────────────────────────
	if n := res.SkippedRows(); n > 0 {
		v := float64(n)
		hints = append(hints, DiagnosticHint{
			Key:   "skipped_rows",
			Level: "warning",
			Title: fmt.Sprintf("%d rows dropped", n),
			Detail: fmt.Sprintf(
				"%d source rows were dropped because their time was blank, unreadable "+
					"or earlier than the previous row. The statistics ignore them. "+
					"Review the caveats before signing the certificate.", n),
			Value: &v,
		})
	}
	if n := res.CoercedValues(); n > 0 {
		v := float64(n)
		hints = append(hints, DiagnosticHint{
			Key:   "coerced_values",
			Level: "warning",
			Title: fmt.Sprintf("%d unreadable values", n),
			Detail: fmt.Sprintf(
				"%d sensor cells were not numbers. Depending on engine.legacy_zero_fill "+
					"they were read as 0 °C or treated as missing. A zero can pull "+
					"stability and uniformity; correct the values if they are known.", n),
			Value: &v,
		})
	}
	if n := res.EditedValues(); n > 0 {
		v := float64(n)
		hints = append(hints, DiagnosticHint{
			Key:    "edited_values",
			Level:  "info",
			Title:  fmt.Sprintf("%d manual edits", n),
			Detail: fmt.Sprintf("%d values were corrected by an operator after upload.", n),
			Value:  &v,
		})
	}

	// ── All clear ────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		hints = append(hints, DiagnosticHint{
			Key:   "compliant",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf("Every statistic is within limits over %d readings "+
				"and no source rows were dropped.", len(res.Readings)),
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}
