package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyboard/internal"
)

func TestDropExactDuplicatesKeepsMultiSelectRows(t *testing.T) {
	tbl := internal.NewTable(
		[]string{"id", "opt"},
		[][]string{{"1", "A"}, {"1", "B"}, {"1", "A"}, {"2", "A"}},
	)
	out, removed := DropExactDuplicates(tbl)
	assert.Equal(t, 1, removed)
	assert.Equal(t, [][]string{{"1", "A"}, {"1", "B"}, {"2", "A"}}, out.Rows)
	assert.Len(t, tbl.Rows, 4, "input untouched")
}

func TestSummarize(t *testing.T) {
	tbl := internal.NewTable(
		[]string{"id", "idade", "opt"},
		[][]string{
			{"1", "18", "A"},
			{"1", "18", "B"},
			{"1", "18", "B"},
			{"2", "30", "A"},
			{"3", "abc", "A"},
			{"4", "24", "C"},
		},
	)
	s := Summarize(tbl, "id", "idade")
	assert.Equal(t, 6, s.TotalRows)
	assert.Equal(t, 5, s.UniqueRows)
	assert.Equal(t, 1, s.ExactDuplicates)
	assert.False(t, s.MissingIdentifier)
	require.NotNil(t, s.Respondents)
	assert.Equal(t, 4, *s.Respondents)
	assert.Equal(t, 2, *s.RepeatedByID)
	assert.InDelta(t, 33.33, *s.RepeatedByIDPct, 0.001)

	assert.Equal(t, 3, s.AgeRespondents)
	require.NotNil(t, s.AgeMean)
	assert.InDelta(t, 24.0, *s.AgeMean, 1e-9)
	assert.Equal(t, 18.0, *s.AgeMin)
	assert.Equal(t, 30.0, *s.AgeMax)
	assert.Equal(t, 24.0, *s.AgeMedian)
}

func TestSummarizeWithoutIdentifierOrAge(t *testing.T) {
	tbl := internal.NewTable([]string{"Idade"}, [][]string{{"20"}, {"20"}, {"x"}})
	s := Summarize(tbl, "id", "idade")
	assert.True(t, s.MissingIdentifier)
	assert.Nil(t, s.Respondents)
	assert.Nil(t, s.RepeatedByID)
	assert.Nil(t, s.AgeMean)
	assert.Equal(t, 0, s.AgeRespondents)

	s = Summarize(tbl, "id", "Idade")
	assert.Equal(t, 2, s.AgeRespondents, "rows stand in for respondents without an identifier")
	require.NotNil(t, s.AgeMean)
	assert.Equal(t, 20.0, *s.AgeMean)
}
