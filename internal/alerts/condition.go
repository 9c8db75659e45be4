package alerts

import (
	"strconv"
	"strings"

	"github.com/thermocert/thermocert/pkg/types"
)

// evalCondition evaluates a rule condition string against a TestResult.
//
// Supported expressions (field operator value):
//
//	uniformity > 1.5
//	max_stability > 0.8
//	min_lethality < 18      (alias: min_f0)
//	dropped_rows > 10       (alias: skipped_rows)
//	coerced_values > 0
//	edited_values > 0
//	readings < 30
//	status == Non-Compliant
//	status != Compliant
//
// Returns (fires bool, triggering value float64). A field the result does not
// define (uniformity of an empty test, F0 of a uniformity test) never fires,
// and neither does an expression that cannot be parsed.
func evalCondition(cond string, res *types.TestResult) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	if field == "status" {
		switch op {
		case "==":
			return string(res.Summary.Status) == rhs, 0
		case "!=":
			return string(res.Summary.Status) != rhs, 0
		}
		return false, 0
	}

	v, ok := numericField(field, res)
	if !ok {
		return false, 0
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return false, 0
	}
	return compareFloat(v, op, threshold), v
}

// numericField maps a field name to its value in the result.
func numericField(field string, res *types.TestResult) (float64, bool) {
	s := &res.Summary
	switch field {
	case "uniformity":
		return deref(s.Uniformity)
	case "max_stability":
		return s.MaxStability()
	case "min_lethality", "min_f0":
		return deref(s.MinLethality)
	case "dropped_rows", "skipped_rows":
		return float64(res.SkippedRows()), true
	case "coerced_values":
		return float64(res.CoercedValues()), true
	case "edited_values":
		return float64(res.EditedValues()), true
	case "readings":
		return float64(len(res.Readings)), true
	default:
		return 0, false
	}
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	case "!=":
		return v != threshold
	default:
		return false
	}
}
