// Package discrepancy compares staging extraction output against the
// production reference and classifies every difference.
package discrepancy

import "math"

// Type is the relationship between a staging value and its production
// counterpart. Every comparison yields exactly one Type.
type Type string

const (
	Identical     Type = "identical"
	Rounding      Type = "rounding"
	Hallucination Type = "hallucination"
	Missing       Type = "missing"
	UnitError     Type = "unit-error"
	SmallError    Type = "small-error"
	CategoryError Type = "category-error"
	BothNull      Type = "both-null"
	Error         Type = "error"
)

// Types lists every Type in display order.
var Types = []Type{
	Identical,
	Rounding,
	SmallError,
	UnitError,
	CategoryError,
	Hallucination,
	Missing,
	BothNull,
	Error,
}

// Passing reports whether t counts as a correct extraction.
func (t Type) Passing() bool {
	return t == Identical || t == Rounding || t == BothNull
}

// DefaultRoundingThreshold is the absolute difference still treated as rounding.
const DefaultRoundingThreshold = 0.5

const (
	// unitTolerance is the relative band around a power of ten that counts
	// as a unit-scaling mistake.
	unitTolerance = 0.05
	// smallErrorTolerance is the largest difference relative to production
	// that counts as a small error.
	smallErrorTolerance = 0.05
)

var unitFactors = []float64{10, 100, 1e3, 1e4, 1e5, 1e6}

// Result is a classification plus its numeric details.
type Result struct {
	Type Type
	// Diff is stage minus prod, set when both values are present.
	Diff *float64
	// UnitErrorFactor is the nominal stage/prod ratio, set for UnitError.
	UnitErrorFactor *float64
}

// Classify returns the discrepancy type between a staging and a production
// value.
func Classify(stage, prod *float64, roundingThreshold float64) Type {
	return Evaluate(stage, prod, roundingThreshold).Type
}

// Evaluate classifies a value pair. Rules are checked in a fixed order and
// the first match wins.
func Evaluate(stage, prod *float64, roundingThreshold float64) Result {
	switch {
	case stage == nil && prod == nil:
		return Result{Type: BothNull}
	case prod == nil:
		return Result{Type: Hallucination}
	case stage == nil:
		return Result{Type: Missing}
	}

	s, p := *stage, *prod
	d := s - p
	res := Result{Diff: &d}
	absDiff := math.Abs(d)

	if absDiff == 0 {
		res.Type = Identical
		return res
	}
	if absDiff <= roundingThreshold {
		res.Type = Rounding
		return res
	}

	// Ratio rules need both magnitudes to be non-zero.
	if s != 0 && p != 0 {
		if factor, ok := unitFactor(s, p); ok {
			res.Type = UnitError
			res.UnitErrorFactor = &factor
			return res
		}
		if absDiff/math.Abs(p) <= smallErrorTolerance {
			res.Type = SmallError
			return res
		}
	}

	res.Type = Error
	return res
}

// unitFactor reports whether stage and prod differ by a power of ten. The
// returned factor is the nominal stage/prod ratio, e.g. 1000 when stage is
// a thousand times larger and 0.001 when it is a thousand times smaller.
func unitFactor(stage, prod float64) (float64, bool) {
	a, b := math.Abs(stage), math.Abs(prod)
	if a == 0 || b == 0 {
		return 0, false
	}
	ratio := math.Max(a, b) / math.Min(a, b)
	for _, f := range unitFactors {
		if math.Abs(ratio-f)/f <= unitTolerance {
			if a >= b {
				return f, true
			}
			return 1 / f, true
		}
	}
	return 0, false
}
