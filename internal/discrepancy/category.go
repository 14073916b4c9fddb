package discrepancy

import (
	"math"

	"github.com/sells-group/extraction-ops/internal/datapoint"
)

// CategoryErrorKind refines a CategoryError.
type CategoryErrorKind string

const (
	// KindDuplicating: the value also sits, unmodified, at its correct slot.
	KindDuplicating CategoryErrorKind = "duplicating"
	// KindSwap: two data points exchanged their values.
	KindSwap CategoryErrorKind = "swap"
	// KindConservative: a specific value landed in a catch-all bucket.
	KindConservative CategoryErrorKind = "conservative"
	// KindOvercategorized: a catch-all value landed in a specific category.
	KindOvercategorized CategoryErrorKind = "overcategorized"
	// KindMixUp: any other confusion between categories.
	KindMixUp CategoryErrorKind = "mix-up"
)

// values holds the staging and production value of every data point for a
// single company and year.
type values struct {
	stage map[string]*float64
	prod  map[string]*float64
}

// sameValue reports whether a and b are the same non-zero value within the
// rounding threshold. Zero carries no identity and never matches.
func sameValue(a, b *float64, threshold float64) bool {
	if a == nil || b == nil || *a == 0 || *b == 0 {
		return false
	}
	return math.Abs(*a-*b) <= threshold
}

// reclassify turns row into a CategoryError when its value belongs to a
// sibling data point of the same scope. Siblings are tried in catalog order.
func reclassify(cat *datapoint.Catalog, dp datapoint.DataPoint, row *CompanyRow, v values, threshold float64) {
	switch row.Discrepancy {
	case Error, SmallError, Hallucination:
		// The staging value belongs to a sibling.
		for _, sib := range cat.SameScope(dp) {
			if !sameValue(row.StageValue, v.prod[sib.Key], threshold) {
				continue
			}
			markCategoryError(row, sib, categoryKind(dp, sib, v, threshold))
			return
		}
	case Missing:
		// The production value was filed under a sibling in staging.
		for _, sib := range cat.SameScope(dp) {
			if !sameValue(row.ProdValue, v.stage[sib.Key], threshold) {
				continue
			}
			if sameValue(v.stage[sib.Key], v.prod[sib.Key], threshold) {
				// Already correct for the sibling itself.
				continue
			}
			markCategoryError(row, sib, categoryKind(sib, dp, v, threshold))
			return
		}
	}
}

func markCategoryError(row *CompanyRow, sib datapoint.DataPoint, kind CategoryErrorKind) {
	row.Discrepancy = CategoryError
	row.MatchedDataPoint = sib.Key
	row.CategoryErrorKind = kind
	row.UnitErrorFactor = nil
}

// categoryKind names the misplacement of a value that sits at landing in
// staging but belongs to owner.
func categoryKind(landing, owner datapoint.DataPoint, v values, threshold float64) CategoryErrorKind {
	ownerStage := v.stage[owner.Key]
	switch {
	case sameValue(ownerStage, v.prod[owner.Key], threshold):
		return KindDuplicating
	case sameValue(ownerStage, v.prod[landing.Key], threshold):
		return KindSwap
	case landing.Generic && !owner.Generic:
		return KindConservative
	case owner.Generic && !landing.Generic:
		return KindOvercategorized
	default:
		return KindMixUp
	}
}
