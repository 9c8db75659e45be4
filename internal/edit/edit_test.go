package edit

import (
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/thermocert/thermocert/internal/compute"
	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/internal/series"
	"github.com/thermocert/thermocert/pkg/types"
)

// newResult builds an evaluated TestResult with readings stepMin minutes apart.
func newResult(t *testing.T, eng *compute.Engine, cat types.Category, stepMin int64, rows ...[]float64) *types.TestResult {
	t.Helper()
	set := &types.MeasurementSet{Sensors: []string{"sensor1", "sensor2"}}
	for i, row := range rows {
		set.Records = append(set.Records, types.Record{
			Timestamp: 1_700_000_000 + int64(i)*stepMin*60,
			Values:    map[string]float64{"sensor1": row[0], "sensor2": row[1]},
		})
	}
	res := &types.TestResult{
		ID:       "t1",
		Category: cat,
		Sensors:  set.Sensors,
		Readings: series.Build(set),
	}
	eng.Evaluate(res)
	return res
}

func TestApply_SterilizationRecovers(t *testing.T) {
	eng := compute.NewEngine(config.DefaultLimits())
	prev := newResult(t, eng, types.CategorySterilization, 10,
		[]float64{121.1, 121.1},
		[]float64{95.0, 121.1}, // sensor1 dips below the lethality floor
		[]float64{121.1, 121.1},
	)
	if prev.Summary.Status != types.StatusNonCompliant {
		t.Fatalf("precondition: got %q, want Non-Compliant (F0=%v)", prev.Summary.Status, *prev.Summary.MinLethality)
	}
	before := *prev.Summary.MinLethality

	next, err := Apply(prev, Edit{Index: 1, Sensor: "sensor1", Value: types.Float(121.1)}, eng)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	after := *next.Summary.MinLethality
	if after < before {
		t.Errorf("F0 decreased: %v -> %v", before, after)
	}
	if after != 20 {
		t.Errorf("F0 after edit: got %v, want 20", after)
	}
	if next.Summary.Status != types.StatusCompliant {
		t.Errorf("status after edit: got %q, want Compliant", next.Summary.Status)
	}
}

func TestApply_DoesNotMutatePrevious(t *testing.T) {
	eng := compute.NewEngine(config.DefaultLimits())
	prev := newResult(t, eng, types.CategoryUniformity, 1,
		[]float64{5.0, 5.5},
		[]float64{5.1, 5.6},
		[]float64{5.2, 5.4},
	)
	snapshot := prev.Clone()

	next, err := Apply(prev, Edit{Index: 1, Sensor: "sensor2", Value: types.Float(9.0)}, eng)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if diff := cmp.Diff(snapshot, prev); diff != "" {
		t.Errorf("previous result was modified (-before +after):\n%s", diff)
	}
	for _, i := range []int{0, 2} {
		if diff := cmp.Diff(prev.Readings[i], next.Readings[i]); diff != "" {
			t.Errorf("reading %d changed (-prev +next):\n%s", i, diff)
		}
	}
	if next.Readings[1].Timestamp != prev.Readings[1].Timestamp {
		t.Error("edited reading moved")
	}

	r := next.Readings[1]
	if *r.Max != 9.0 || *r.Min != 5.1 || math.Abs(*r.Mean-7.05) > 1e-12 {
		t.Errorf("row aggregates: min=%v max=%v mean=%v", *r.Min, *r.Max, *r.Mean)
	}
	if next.Summary.Status != types.StatusNonCompliant {
		t.Errorf("status: got %q, want Non-Compliant", next.Summary.Status)
	}
	if got := next.EditedValues(); got != 1 {
		t.Fatalf("edit caveats: got %d, want 1", got)
	}
	c := next.Caveats[len(next.Caveats)-1]
	if c.Row != 2 || c.Sensor != "sensor2" || c.Reason != "changed from 5.6 to 9" {
		t.Errorf("caveat: got %+v", c)
	}

	// Writing to the new result must not reach the old one.
	*next.Readings[0].Temperatures["sensor1"] = -1
	if v, _ := prev.Readings[0].Value("sensor1"); v != 5.0 {
		t.Errorf("results share memory: prev sensor1[0] = %v", v)
	}
}

func TestApply_Clear(t *testing.T) {
	eng := compute.NewEngine(config.DefaultLimits())
	prev := newResult(t, eng, types.CategoryUniformity, 1,
		[]float64{5.0, 5.5},
		[]float64{5.1, 5.6},
	)

	next, err := Apply(prev, Edit{Index: 0, Sensor: "sensor1"}, eng)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	r := next.Readings[0]
	if _, ok := r.Value("sensor1"); ok {
		t.Error("sensor1 should be missing after clear")
	}
	if r.Present != 1 || next.Summary.UniformityByReading[0] != 0 {
		t.Errorf("present=%d uniformity[0]=%v", r.Present, next.Summary.UniformityByReading[0])
	}
	if next.Summary.Stability["sensor1"] != 0 {
		t.Errorf("stability over one value: got %v", next.Summary.Stability["sensor1"])
	}
}

func TestApply_Errors(t *testing.T) {
	eng := compute.NewEngine(config.DefaultLimits())
	prev := newResult(t, eng, types.CategoryUniformity, 1, []float64{5.0, 5.5})

	tests := []struct {
		name string
		edit Edit
		want error
	}{
		{"negative index", Edit{Index: -1, Sensor: "sensor1", Value: types.Float(1)}, ErrIndexOutOfRange},
		{"index past end", Edit{Index: 1, Sensor: "sensor1", Value: types.Float(1)}, ErrIndexOutOfRange},
		{"unknown sensor", Edit{Index: 0, Sensor: "sensor9", Value: types.Float(1)}, ErrUnknownSensor},
		{"NaN", Edit{Index: 0, Sensor: "sensor1", Value: types.Float(math.NaN())}, ErrInvalidValue},
		{"Inf", Edit{Index: 0, Sensor: "sensor1", Value: types.Float(math.Inf(1))}, ErrInvalidValue},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, err := Apply(prev, tc.edit, eng)
			if !errors.Is(err, tc.want) {
				t.Errorf("error: got %v, want %v", err, tc.want)
			}
			if next != nil {
				t.Error("result should be nil on error")
			}
		})
	}
}
