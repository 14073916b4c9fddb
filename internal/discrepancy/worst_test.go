package discrepancy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/extraction-ops/internal/model"
)

func TestWorstCompanies(t *testing.T) {
	t.Parallel()

	stage := []model.Company{
		company("Q1", "Clean", period(2023, vals{"scope1_total": 10})),
		company("Q2", "Messy", period(2023, vals{
			"scope1_total": 999, "scope2_mb": 1, "scope2_lb": 3, "scope3_cat1": 17, "scope3_cat3": 40,
		})),
		company("Q3", "Bravo", period(2023, vals{"scope1_total": 200})),
		company("Q4", "Alpha", period(2023, vals{"scope1_total": 200})),
		company("Q5", "No Prod Period", period(2023, vals{"scope1_total": 1})),
	}
	prod := []model.Company{
		company("Q1", "Clean", period(2023, vals{"scope1_total": 10})),
		company("Q2", "Messy", period(2023, vals{
			"scope1_total": 5, "scope2_mb": 9, "scope2_lb": 8, "scope3_cat1": 11, "scope3_cat3": 80,
		})),
		company("Q3", "Bravo", period(2023, vals{"scope1_total": 100})),
		company("Q4", "Alpha", period(2023, vals{"scope1_total": 100})),
		company("Q5", "No Prod Period", period(2022, vals{"scope1_total": 1})),
	}

	ranked := WorstCompanies(stage, prod, 2023, DefaultOptions())
	require.Len(t, ranked, 4)

	assert.Equal(t, "Q2", ranked[0].WikidataID)
	assert.Equal(t, 5, ranked[0].Errors)
	assert.True(t, ranked[0].Difficult)
	assert.Len(t, ranked[0].Failing, 5)

	// Ties keep name order.
	assert.Equal(t, "Alpha", ranked[1].Name)
	assert.Equal(t, "Bravo", ranked[2].Name)
	assert.Equal(t, 1, ranked[1].Errors)
	assert.False(t, ranked[1].Difficult)

	assert.Equal(t, "Clean", ranked[3].Name)
	assert.Zero(t, ranked[3].Errors)
	assert.Empty(t, ranked[3].Failing)
	assert.Equal(t, 1, ranked[3].Breakdown.Identical)
}

func TestWorstCompanies_DifficultThreshold(t *testing.T) {
	t.Parallel()

	stage := []model.Company{company("Q1", "Alfa", period(2023, vals{"scope1_total": 300, "scope2_mb": 70}))}
	prod := []model.Company{company("Q1", "Alfa", period(2023, vals{"scope1_total": 100, "scope2_mb": 10}))}

	opts := DefaultOptions()
	ranked := WorstCompanies(stage, prod, 2023, opts)
	require.Len(t, ranked, 1)
	assert.Equal(t, 2, ranked[0].Errors)
	assert.False(t, ranked[0].Difficult)

	opts.DifficultAt = 2
	ranked = WorstCompanies(stage, prod, 2023, opts)
	assert.True(t, ranked[0].Difficult)
}
