package compute

import (
	"math"

	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/pkg/types"
)

// LethalRate returns the lethal rate of one minute at temperature t relative
// to the reference temperature.
func LethalRate(t float64, l config.Limits) float64 {
	return math.Pow(10, (t-l.ReferenceTemp)/l.ZValue)
}

// LethalitySeries returns the running F0 of sensor after each reading. ok is
// false when the sensor has no value in any reading, in which case its F0 is
// undefined.
//
// Reading i contributes (offset_i − offset_{i−1}) × LethalRate(T_i) when T_i
// is present and at or above the lethality floor. The first reading has no
// preceding interval and contributes nothing. Non-positive or non-finite
// intervals contribute nothing, so the series never decreases.
func LethalitySeries(readings []types.Reading, sensor string, l config.Limits) (series []float64, ok bool) {
	series = make([]float64, len(readings))
	var acc float64
	for i := range readings {
		r := &readings[i]
		temp, present := r.Value(sensor)
		if present {
			ok = true
		}
		if i > 0 && present && temp >= l.LethalityFloor {
			dt := r.TimeOffsetMinutes - readings[i-1].TimeOffsetMinutes
			if dt > 0 && !math.IsInf(dt, 0) && !math.IsNaN(dt) {
				if term := dt * LethalRate(temp, l); !math.IsNaN(term) && !math.IsInf(term, 0) {
					acc += term
				}
			}
		}
		series[i] = acc
	}
	if !ok {
		return nil, false
	}
	return series, true
}

// Lethality returns the total F0 of sensor over readings.
func Lethality(readings []types.Reading, sensor string, l config.Limits) (float64, bool) {
	s, ok := LethalitySeries(readings, sensor, l)
	if !ok || len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}
