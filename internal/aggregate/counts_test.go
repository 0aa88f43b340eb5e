package aggregate

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
)

func optTable() *internal.Table {
	return internal.NewTable(
		[]string{"id", "opt"},
		[][]string{{"1", "A"}, {"1", "B"}, {"2", "A"}},
	)
}

func TestCountByRowAndRespondentScenario(t *testing.T) {
	tbl := optTable()

	byRow, err := CountByRow(tbl, "opt")
	require.NoError(t, err)
	assert.Equal(t, internal.BasisRows, byRow.Basis)
	assert.Equal(t, 3, byRow.TotalBase)
	assert.Equal(t, 2, byRow.Count("A"))
	assert.Equal(t, 1, byRow.Count("B"))
	assert.InDelta(t, 66.67, byRow.Rows[0].Percentage, 0.001)

	byResp, err := CountByRespondent(tbl, "opt", "id")
	require.NoError(t, err)
	assert.Equal(t, internal.BasisRespondents, byResp.Basis)
	assert.Equal(t, 2, byResp.TotalBase)
	assert.Equal(t, []internal.AggregationRow{
		{Category: "A", Count: 2, Percentage: 100},
		{Category: "B", Count: 1, Percentage: 50},
	}, byResp.Rows)
}

func TestCountSkipsMissingValues(t *testing.T) {
	tbl := internal.NewTable(
		[]string{"id", "curso"},
		[][]string{{"1", "Eng"}, {"2", "  "}, {"3", ""}, {"4", " Eng "}, {"", "Adm"}, {"4", "Eng"}},
	)

	byRow, err := CountByRow(tbl, "curso")
	require.NoError(t, err)
	assert.Equal(t, 4, byRow.TotalBase)
	assert.Equal(t, 3, byRow.Count("Eng"))
	assert.Equal(t, 1, byRow.Count("Adm"))

	byResp, err := CountByRespondent(tbl, "curso", "id")
	require.NoError(t, err)
	assert.Equal(t, 2, byResp.TotalBase, "anonymous row and blank answers are not in the base")
	assert.Equal(t, 2, byResp.Count("Eng"))
	assert.Equal(t, 0, byResp.Count("Adm"))
}

func TestCountErrors(t *testing.T) {
	tbl := optTable()

	_, err := CountByRow(tbl, "nope")
	assert.True(t, errors.Is(err, apperr.ErrMissingColumn))

	_, err = CountByRespondent(tbl, "nope", "id")
	assert.True(t, errors.Is(err, apperr.ErrMissingColumn))

	_, err = CountByRespondent(tbl, "opt", "respondent_id")
	assert.True(t, errors.Is(err, apperr.ErrMissingIdentifier))
	assert.False(t, errors.Is(err, apperr.ErrMissingColumn))
}

func TestCountOrderingIsDeterministic(t *testing.T) {
	tbl := internal.NewTable(
		[]string{"id", "opt"},
		[][]string{{"1", "c"}, {"2", "b"}, {"3", "a"}, {"4", "b"}},
	)
	res, err := CountByRow(tbl, "opt")
	require.NoError(t, err)
	cats := []string{}
	for _, r := range res.Rows {
		cats = append(cats, r.Category)
	}
	assert.Equal(t, []string{"b", "a", "c"}, cats)
}

func TestCountProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	options := []string{"A", "B", "C", "", " "}
	for trial := 0; trial < 50; trial++ {
		rows := [][]string{}
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			rows = append(rows, []string{fmt.Sprint(rng.Intn(10)), options[rng.Intn(len(options))]})
		}
		tbl := internal.NewTable([]string{"id", "opt"}, rows)

		nonMissing := 0
		ids := map[string]struct{}{}
		for _, r := range rows {
			ids[r[0]] = struct{}{}
			if !internal.IsMissing(r[1]) {
				nonMissing++
			}
		}

		byRow, err := CountByRow(tbl, "opt")
		require.NoError(t, err)
		assert.Equal(t, nonMissing, byRow.TotalBase)

		byResp, err := CountByRespondent(tbl, "opt", "id")
		require.NoError(t, err)
		for _, r := range byResp.Rows {
			assert.LessOrEqual(t, r.Count, len(ids))
			assert.LessOrEqual(t, r.Percentage, 100.0)
		}
		sum := 0
		for _, r := range byResp.Rows {
			sum += r.Count
		}
		assert.LessOrEqual(t, sum, len(ids)*len(byResp.Rows))
		assert.LessOrEqual(t, byResp.TotalBase, len(ids))
	}
}

func TestParseBasis(t *testing.T) {
	for raw, want := range map[string]internal.CountBasis{
		"":            internal.BasisRespondents,
		"rows":        internal.BasisRows,
		" Rows ":      internal.BasisRows,
		"respondents": internal.BasisRespondents,
	} {
		got, err := ParseBasis(raw)
		require.NoError(t, err, "basis %q", raw)
		assert.Equal(t, want, got)
	}

	_, err := ParseBasis("respondent")
	assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
}

func TestCountSplit(t *testing.T) {
	tbl := internal.NewTable(
		[]string{"id", "motivos"},
		[][]string{
			{"1", "Bolsa, Curso, Bolsa"},
			{"1", "Curso"},
			{"2", "Bolsa"},
			{"3", ""},
			{"4", "Amigos ,  ,Bolsa"},
		},
	)
	res, err := CountSplit(tbl, "motivos", ",", "id", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalBase)
	assert.Equal(t, 3, res.Count("Bolsa"))
	assert.Equal(t, 1, res.Count("Curso"))
	assert.Equal(t, 1, res.Count("Amigos"))
	assert.Equal(t, "Bolsa", res.Rows[0].Category)

	top, err := CountSplit(tbl, "motivos", "", "id", 2)
	require.NoError(t, err)
	assert.Len(t, top.Rows, 2)
	assert.Equal(t, []string{"Bolsa", "Amigos"}, []string{top.Rows[0].Category, top.Rows[1].Category})
}

func TestCompareBases(t *testing.T) {
	cmp, err := CompareBases(optTable(), "opt", "id")
	require.NoError(t, err)
	assert.Equal(t, 3, cmp.RowBase)
	assert.Equal(t, 2, cmp.RespondentBase)
	require.Len(t, cmp.Rows, 2)
	assert.Equal(t, ComparisonRow{Category: "A", Rows: 2, RowPct: 66.67, Respondents: 2, RespondentPct: 100, RowsPerRespondent: 1}, cmp.Rows[0])

	_, err = CompareBases(optTable(), "opt", "missing")
	assert.True(t, errors.Is(err, apperr.ErrMissingIdentifier))
}

func TestPresence(t *testing.T) {
	tbl := internal.NewTable(
		[]string{"id", "conceito_a", "conceito_b"},
		[][]string{{"1", "x", ""}, {"1", "x", "y"}, {"2", "", ""}, {"3", "x", ""}},
	)
	res, err := Presence(tbl, []internal.LikertQuestion{
		{Label: "A", Column: "conceito_a"},
		{Label: "B", Column: "conceito_b"},
		{Label: "C", Column: "conceito_c"},
	}, "id")
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalBase)
	assert.Equal(t, []internal.AggregationRow{
		{Category: "A", Count: 2, Percentage: 66.67},
		{Category: "B", Count: 1, Percentage: 33.33},
		{Category: "C", Count: 0, Percentage: 0},
	}, res.Rows)
}
