package aggregate

import (
	"strings"

	"github.com/montanaflynn/stats"

	"surveyboard/internal"
	"surveyboard/internal/util"
)

func rowKey(row []string) string {
	return strings.Join(row, "\x1f")
}

// DropExactDuplicates removes rows identical across every column, keeping the
// first occurrence. Rows that only share a respondent identifier are kept.
func DropExactDuplicates(t *internal.Table) (*internal.Table, int) {
	seen := make(map[string]struct{}, len(t.Rows))
	rows := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		k := rowKey(row)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		rows = append(rows, row)
	}
	out := t.WithColumns(t.Columns)
	out.Rows = rows
	return out, len(t.Rows) - len(rows)
}

// Summarize computes the dataset KPIs. A missing respondent column leaves the
// respondent figures nil and sets MissingIdentifier; a missing age column
// leaves the age figures nil. Ages are taken once per respondent when an
// identifier exists and once per row otherwise.
func Summarize(t *internal.Table, respondent, ageColumn string) internal.Summary {
	_, dups := DropExactDuplicates(t)
	s := internal.Summary{
		TotalRows:        t.Len(),
		UniqueRows:       t.Len() - dups,
		ExactDuplicates:  dups,
		ColumnCount:      len(t.Columns),
		RespondentColumn: respondent,
		AgeColumn:        ageColumn,
	}

	rid := t.Index(respondent)
	if rid < 0 {
		s.MissingIdentifier = true
	} else {
		ids := map[string]struct{}{}
		identified := 0
		for _, row := range t.Rows {
			id := strings.TrimSpace(row[rid])
			if id == "" {
				continue
			}
			identified++
			ids[id] = struct{}{}
		}
		repeated := identified - len(ids)
		s.Respondents = util.IntPtr(len(ids))
		s.RepeatedByID = util.IntPtr(repeated)
		s.RepeatedByIDPct = util.FloatPtr(percent(repeated, t.Len()))
	}

	ageIdx := t.Index(ageColumn)
	if ageIdx < 0 {
		return s
	}
	ages := stats.Float64Data(respondentAges(t, ageIdx, rid))
	s.AgeRespondents = len(ages)
	if len(ages) == 0 {
		return s
	}
	if v, err := stats.Mean(ages); err == nil {
		s.AgeMean = util.FloatPtr(v)
	}
	if v, err := stats.Min(ages); err == nil {
		s.AgeMin = util.FloatPtr(v)
	}
	if v, err := stats.Max(ages); err == nil {
		s.AgeMax = util.FloatPtr(v)
	}
	if v, err := stats.Median(ages); err == nil {
		s.AgeMedian = util.FloatPtr(v)
	}
	return s
}
