package edit

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/thermocert/thermocert/internal/compute"
	"github.com/thermocert/thermocert/internal/series"
	"github.com/thermocert/thermocert/pkg/types"
)

// Errors returned by Apply for an edit that cannot be placed.
var (
	ErrIndexOutOfRange = errors.New("edit: reading index out of range")
	ErrUnknownSensor   = errors.New("edit: unknown sensor")
	ErrInvalidValue    = errors.New("edit: value must be a finite number")
)

// Edit is one correction. A nil Value clears the reading to missing.
type Edit struct {
	Index  int      `json:"index"`
	Sensor string   `json:"sensor"`
	Value  *float64 `json:"value"`
}

// Apply returns prev with e applied and its statistics recomputed by eng.
// prev is left untouched and shares no memory with the result.
func Apply(prev *types.TestResult, e Edit, eng *compute.Engine) (*types.TestResult, error) {
	if e.Index < 0 || e.Index >= len(prev.Readings) {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, e.Index, len(prev.Readings))
	}
	if !hasSensor(prev.Sensors, e.Sensor) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSensor, e.Sensor)
	}
	if e.Value != nil && (math.IsNaN(*e.Value) || math.IsInf(*e.Value, 0)) {
		return nil, ErrInvalidValue
	}

	next := prev.Clone()
	r := &next.Readings[e.Index]
	old, hadOld := r.Value(e.Sensor)
	if e.Value == nil {
		r.Temperatures[e.Sensor] = nil
	} else {
		r.Temperatures[e.Sensor] = types.Float(*e.Value)
	}
	series.Aggregate(r, next.Sensors)
	eng.Evaluate(next)

	next.Caveats = append(next.Caveats, types.Caveat{
		Kind:   types.CaveatValueEdited,
		Row:    e.Index + 1,
		Sensor: e.Sensor,
		Reason: fmt.Sprintf("changed from %s to %s", describe(old, hadOld), describe(deref(e.Value))),
	})
	return next, nil
}

func hasSensor(sensors []string, s string) bool {
	for _, x := range sensors {
		if x == s {
			return true
		}
	}
	return false
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

func describe(v float64, ok bool) string {
	if !ok {
		return "missing"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
