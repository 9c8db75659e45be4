package series

import (
	"github.com/montanaflynn/stats"

	"github.com/thermocert/thermocert/pkg/types"
)

// Build returns one Reading per record of set, in record order. Every declared
// sensor has an entry in Temperatures; absent values are nil.
func Build(set *types.MeasurementSet) []types.Reading {
	if len(set.Records) == 0 {
		return nil
	}
	t0 := set.Records[0].Timestamp
	readings := make([]types.Reading, len(set.Records))
	for i, rec := range set.Records {
		r := types.Reading{
			Timestamp:         rec.Timestamp,
			TimeOffsetMinutes: float64(rec.Timestamp-t0) / 60,
			Temperatures:      make(map[string]*float64, len(set.Sensors)),
		}
		for _, s := range set.Sensors {
			if v, ok := rec.Values[s]; ok {
				r.Temperatures[s] = types.Float(v)
			} else {
				r.Temperatures[s] = nil
			}
		}
		Aggregate(&r, set.Sensors)
		readings[i] = r
	}
	return readings
}

// Aggregate recomputes the cached row aggregates of r over the present values
// of sensors. With no present value the aggregates are cleared.
func Aggregate(r *types.Reading, sensors []string) {
	vals := Values(r, sensors)
	r.Present = len(vals)
	if len(vals) == 0 {
		r.Min, r.Max, r.Mean = nil, nil, nil
		return
	}
	min, _ := stats.Min(vals)
	max, _ := stats.Max(vals)
	mean, _ := stats.Mean(vals)
	r.Min, r.Max, r.Mean = types.Float(min), types.Float(max), types.Float(mean)
}

// Values returns the present temperatures of r in sensor order.
func Values(r *types.Reading, sensors []string) stats.Float64Data {
	vals := make(stats.Float64Data, 0, len(sensors))
	for _, s := range sensors {
		if v, ok := r.Value(s); ok {
			vals = append(vals, v)
		}
	}
	return vals
}
