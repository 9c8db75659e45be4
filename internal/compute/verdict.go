package compute

import (
	"github.com/thermocert/thermocert/internal/config"
	"github.com/thermocert/thermocert/pkg/types"
)

// Tolerance absorbs float64 noise when a statistic is compared with a limit:
// 4.4-3.4 evaluates to 1.0000000000000004 and must still meet a 1.0 limit.
const Tolerance = 1e-9

// Exceeds reports whether v is above the maximum limit.
func Exceeds(v, limit float64) bool { return v > limit+Tolerance }

// FallsShort reports whether v is below the minimum limit.
func FallsShort(v, limit float64) bool { return v < limit-Tolerance }

// VerdictInput holds the statistics that decide a test's status.
type VerdictInput struct {
	Category types.Category

	// Decidable is true when at least one reading had two or more sensor
	// values. Without it the status is N/A.
	Decidable bool

	// MaxStability is the largest per-sensor stability. Nil when no sensor
	// has a value.
	MaxStability *float64

	Uniformity *float64

	// MinLethality is nil when no sensor accumulated a defined F0.
	MinLethality *float64
}

// Verdict returns the certificate status for in under limits l.
//
// Uniformity tests fail when the maximum stability or the uniformity exceeds
// its limit. Sterilization tests fail when the minimum F0 is below the
// lethality minimum, and are N/A when no F0 is defined.
func Verdict(in VerdictInput, l config.Limits) types.Status {
	if !in.Decidable {
		return types.StatusNA
	}
	switch in.Category {
	case types.CategorySterilization:
		if in.MinLethality == nil {
			return types.StatusNA
		}
		if FallsShort(*in.MinLethality, l.MinLethality) {
			return types.StatusNonCompliant
		}
	default:
		if in.MaxStability != nil && Exceeds(*in.MaxStability, l.Stability) {
			return types.StatusNonCompliant
		}
		if in.Uniformity != nil && Exceeds(*in.Uniformity, l.Uniformity) {
			return types.StatusNonCompliant
		}
	}
	return types.StatusCompliant
}
