package api

import (
	"testing"

	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/pkg/types"
)

func keys(hints []DiagnosticHint) []string {
	out := make([]string, len(hints))
	for i, h := range hints {
		out[i] = h.Key
	}
	return out
}

func TestComputeDiagnostics(t *testing.T) {
	l := config.DefaultLimits()

	t.Run("uniformity failures first", func(t *testing.T) {
		res := &types.TestResult{
			Category: types.CategoryUniformity,
			Sensors:  []string{"sensor1", "sensor2", "sensor3"},
			Readings: make([]types.Reading, 5),
			Summary: types.Summary{
				Stability:  map[string]float64{"sensor1": 1.0000000000000004, "sensor2": 1.2},
				Uniformity: types.Float(2.5),
				Status:     types.StatusNonCompliant,
			},
			Caveats: []types.Caveat{{Kind: types.CaveatRowSkipped, Row: 4}},
		}
		got := keys(computeDiagnostics(res, l))
		want := []string{"stability_sensor2", "uniformity", "silent_sensor3", "skipped_rows"}
		if len(got) != len(want) {
			t.Fatalf("keys: got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("keys[%d]: got %q, want %q", i, got[i], want[i])
			}
		}
	})

	t.Run("short lethality", func(t *testing.T) {
		res := &types.TestResult{
			Category: types.CategorySterilization,
			Sensors:  []string{"sensor1", "sensor2"},
			Summary: types.Summary{
				Stability:    map[string]float64{"sensor1": 0.3, "sensor2": 0.4},
				Lethality:    map[string]float64{"sensor1": 14.999, "sensor2": 14.9999999999},
				MinLethality: types.Float(14.999),
				Status:       types.StatusNonCompliant,
			},
		}
		hints := computeDiagnostics(res, l)
		if len(hints) != 1 || hints[0].Key != "lethality_sensor1" || hints[0].Level != "critical" {
			t.Errorf("hints: got %v", keys(hints))
		}
	})

	t.Run("not applicable", func(t *testing.T) {
		res := &types.TestResult{
			Category: types.CategoryUniformity,
			Sensors:  []string{"sensor1"},
			Summary: types.Summary{
				Stability: map[string]float64{"sensor1": 0},
				Status:    types.StatusNA,
			},
			Caveats: []types.Caveat{{Kind: types.CaveatValueEdited, Row: 1, Sensor: "sensor1"}},
		}
		got := keys(computeDiagnostics(res, l))
		if len(got) != 2 || got[0] != "not_applicable" || got[1] != "edited_values" {
			t.Errorf("keys: got %v", got)
		}
	})
}
