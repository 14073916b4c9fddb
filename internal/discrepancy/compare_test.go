package discrepancy

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/sells-group/extraction-ops/internal/datapoint"
	"github.com/sells-group/extraction-ops/internal/model"
)

func TestCompareAll_PairsByWikidataID(t *testing.T) {
	t.Parallel()

	stage := []model.Company{
		company("Q2", "Beta", period(2023, vals{"scope1_total": 10})),
		company("Q1", "Alfa", period(2023, vals{"scope1_total": 5})),
		company("Q9", "Only Stage", period(2023, vals{"scope1_total": 1})),
		company("", "No ID", period(2023, vals{"scope1_total": 1})),
	}
	prod := []model.Company{
		company("Q1", "Alfa", period(2023, vals{"scope1_total": 5})),
		company("Q2", "Beta", period(2023, vals{"scope1_total": 12})),
		company("Q8", "Only Prod", period(2023, vals{"scope1_total": 1})),
	}

	rows, err := Compare(stage, prod, "scope1_total", 2023, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Q1", rows[0].WikidataID)
	assert.Equal(t, Identical, rows[0].Discrepancy)
	assert.Equal(t, "Q2", rows[1].WikidataID)
	assert.Equal(t, Error, rows[1].Discrepancy)
	require.NotNil(t, rows[1].Diff)
	assert.Equal(t, -2.0, *rows[1].Diff)
}

func TestCompareAll_OneRowPerDataPoint(t *testing.T) {
	t.Parallel()

	stage := []model.Company{company("Q1", "Alfa", period(2023, vals{"scope1_total": 5}))}
	prod := []model.Company{company("Q1", "Alfa", period(2023, vals{"scope1_total": 5}))}

	rows := CompareAll(stage, prod, 2023, DefaultOptions())
	assert.Len(t, rows, datapoint.Default().Len())
	assert.Equal(t, BothNull, rowFor(rows, "Q1", "scope2_mb").Discrepancy)
}

func TestCompareAll_YearInclusion(t *testing.T) {
	t.Parallel()

	stage := []model.Company{
		company("Q1", "Stage Only Year", period(2023, vals{"scope1_total": 5})),
		company("Q2", "Other Year", period(2021, vals{"scope1_total": 5})),
	}
	prod := []model.Company{
		company("Q1", "Stage Only Year", period(2022, vals{"scope1_total": 5})),
		company("Q2", "Other Year", period(2021, vals{"scope1_total": 5})),
	}

	rows, err := Compare(stage, prod, "scope1_total", 2023, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Q1", rows[0].WikidataID)
	assert.Equal(t, Hallucination, rows[0].Discrepancy)
	assert.Nil(t, rows[0].ProdValue)
}

func TestCompare_UnknownDataPoint(t *testing.T) {
	t.Parallel()

	_, err := Compare(nil, nil, "scope9_total", 2023, DefaultOptions())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discrepancy: unknown data point")
}

func TestCompare_ThresholdFromOptions(t *testing.T) {
	t.Parallel()

	stage := []model.Company{company("Q1", "Alfa", period(2023, vals{"scope1_total": 100}))}
	prod := []model.Company{company("Q1", "Alfa", period(2023, vals{"scope1_total": 101.5}))}

	rows, err := Compare(stage, prod, "scope1_total", 2023, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, SmallError, rows[0].Discrepancy)

	opts := DefaultOptions()
	opts.RoundingThreshold = 2
	rows, err = Compare(stage, prod, "scope1_total", 2023, opts)
	require.NoError(t, err)
	assert.Equal(t, Rounding, rows[0].Discrepancy)
}

func TestCompareAll_Idempotent(t *testing.T) {
	t.Parallel()

	stage := []model.Company{
		company("Q1", "Alfa", period(2023, vals{"scope2_mb": 50, "scope3_cat1": 10, "scope3_cat2": 20})),
	}
	prod := []model.Company{
		company("Q1", "Alfa", period(2023, vals{"scope2_lb": 50, "scope3_cat1": 20, "scope3_cat2": 10})),
	}

	first := CompareAll(stage, prod, 2023, DefaultOptions())
	assert.Equal(t, first, CompareAll(stage, prod, 2023, DefaultOptions()))
}

func TestCompareAll_ZeroOptions(t *testing.T) {
	t.Parallel()

	stage := []model.Company{company("Q1", "Alfa", period(2023, vals{"scope1_total": 100.4}))}
	prod := []model.Company{company("Q1", "Alfa", period(2023, vals{"scope1_total": 100}))}

	rows := CompareAll(stage, prod, 2023, Options{})
	assert.Len(t, rows, datapoint.Default().Len())

	// A zero threshold is exact matching, not the default.
	exact, err := Compare(stage, prod, "scope1_total", 2023, Options{})
	require.NoError(t, err)
	require.Len(t, exact, 1)
	assert.Equal(t, SmallError, exact[0].Discrepancy)

	rounded, err := Compare(stage, prod, "scope1_total", 2023, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, rounded, 1)
	assert.Equal(t, Rounding, rounded[0].Discrepancy)
}

func TestCompareAll_OrdersByCollation(t *testing.T) {
	t.Parallel()

	var stage, prod []model.Company
	for i, name := range []string{"Ängelholm", "Zeta", "beta", "Alfa"} {
		id := fmt.Sprintf("Q%d", i+1)
		stage = append(stage, company(id, name, period(2023, vals{"scope1_total": 1})))
		prod = append(prod, company(id, name, period(2023, vals{"scope1_total": 1})))
	}

	names := func(opts Options) []string {
		rows, err := Compare(stage, prod, "scope1_total", 2023, opts)
		require.NoError(t, err)
		var out []string
		for _, r := range rows {
			out = append(out, r.Name)
		}
		return out
	}

	assert.Equal(t, []string{"Alfa", "beta", "Zeta", "Ängelholm"}, names(Options{}))
	assert.Equal(t, []string{"Alfa", "Ängelholm", "beta", "Zeta"}, names(Options{Language: language.English}))
}

func TestYears(t *testing.T) {
	t.Parallel()

	stage := []model.Company{
		company("Q1", "Alfa", period(2021, nil), period(2023, nil)),
		company("Q5", "Unpaired", period(2019, nil)),
	}
	prod := []model.Company{
		company("Q1", "Alfa", period(2022, nil), period(2023, nil)),
	}

	assert.Equal(t, []int{2023, 2022, 2021}, Years(stage, prod))
	assert.Empty(t, Years(nil, nil))
}
