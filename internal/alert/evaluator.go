// Package alert implements threshold evaluation and the alert lifecycle:
// cache-guarded triggering, duration gating, and idempotent resolution.
package alert

import "math"

// equalityEpsilon bounds the float comparison used by the EQ operator.
const equalityEpsilon = 1e-3

// Evaluate reports whether value violates the threshold under the given
// comparison operator. Unknown operators never match.
func Evaluate(value, threshold float64, operator string) bool {
	switch operator {
	case "GT":
		return value > threshold
	case "GTE":
		return value >= threshold
	case "LT":
		return value < threshold
	case "LTE":
		return value <= threshold
	case "EQ":
		return math.Abs(value-threshold) < equalityEpsilon
	default:
		return false
	}
}
