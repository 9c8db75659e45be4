package compute

import (
	"log/slog"
	"sync"

	"github.com/montanaflynn/stats"

	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/pkg/types"
)

// Engine computes test summaries under the currently active limits.
//
// All exported methods are safe for concurrent use. Summarize reads the
// limits once, so a concurrent SetLimits never mixes two regimes in one
// summary.
type Engine struct {
	mu     sync.RWMutex
	limits config.Limits
}

// NewEngine returns an Engine using limits l.
func NewEngine(l config.Limits) *Engine {
	return &Engine{limits: l}
}

// Limits returns the active limits.
func (e *Engine) Limits() config.Limits {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.limits
}

// SetLimits replaces the active limits. Summaries already computed are not
// touched; callers re-run Summarize if they need the new verdicts.
func (e *Engine) SetLimits(l config.Limits) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if l != e.limits {
		slog.Info("compute: limits updated",
			"stability", l.Stability,
			"uniformity", l.Uniformity,
			"min_lethality", l.MinLethality,
		)
	}
	e.limits = l
}

// Summarize computes the Summary of readings over sensors. Row aggregates
// cached on the readings are trusted and not recomputed. readings is not
// modified.
func (e *Engine) Summarize(readings []types.Reading, sensors []string, cat types.Category) types.Summary {
	l := e.Limits()

	sum := types.Summary{
		Stability:           make(map[string]float64, len(sensors)),
		UniformityByReading: make([]float64, len(readings)),
	}

	var all stats.Float64Data
	for _, s := range sensors {
		var vals stats.Float64Data
		for i := range readings {
			if v, ok := readings[i].Value(s); ok {
				vals = append(vals, v)
			}
		}
		if len(vals) == 0 {
			continue
		}
		min, _ := stats.Min(vals)
		max, _ := stats.Max(vals)
		sum.Stability[s] = max - min
		all = append(all, vals...)
	}
	if len(all) > 0 {
		min, _ := stats.Min(all)
		max, _ := stats.Max(all)
		mean, _ := stats.Mean(all)
		sum.Min, sum.Max, sum.Mean = types.Float(min), types.Float(max), types.Float(mean)
	}

	decidable := false
	for i := range readings {
		r := &readings[i]
		if r.Present >= 2 && r.Min != nil && r.Max != nil {
			sum.UniformityByReading[i] = *r.Max - *r.Min
			decidable = true
		}
	}
	if len(readings) > 0 {
		u, _ := stats.Max(stats.Float64Data(sum.UniformityByReading))
		sum.Uniformity = types.Float(u)
	}

	if cat == types.CategorySterilization {
		sum.Lethality = make(map[string]float64, len(sensors))
		for _, s := range sensors {
			f0, ok := Lethality(readings, s, l)
			if !ok {
				continue
			}
			sum.Lethality[s] = f0
			if sum.MinLethality == nil || f0 < *sum.MinLethality {
				sum.MinLethality = types.Float(f0)
			}
		}
	}

	in := VerdictInput{
		Category:     cat,
		Decidable:    decidable,
		Uniformity:   sum.Uniformity,
		MinLethality: sum.MinLethality,
	}
	if ms, ok := sum.MaxStability(); ok {
		in.MaxStability = types.Float(ms)
	}
	sum.Status = Verdict(in, l)
	return sum
}

// Evaluate recomputes t.Summary in place from t.Readings.
func (e *Engine) Evaluate(t *types.TestResult) {
	t.Summary = e.Summarize(t.Readings, t.Sensors, t.Category)
}
