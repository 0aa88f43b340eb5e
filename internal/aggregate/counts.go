package aggregate

import (
	"math"
	"sort"
	"strings"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
)

// percent is count/base*100 rounded to two decimals, 0 for an empty base.
func percent(count, base int) float64 {
	if base <= 0 {
		return 0
	}
	return math.Round(float64(count)*10000/float64(base)) / 100
}

func columnIndex(t *internal.Table, column string) (int, error) {
	idx := t.Index(column)
	if idx < 0 {
		return -1, apperr.MissingColumn(column)
	}
	return idx, nil
}

func respondentIndex(t *internal.Table, respondent string) (int, error) {
	idx := t.Index(respondent)
	if idx < 0 {
		return -1, apperr.MissingIdentifier(respondent)
	}
	return idx, nil
}

// buildRows turns category counts into result rows sorted by count desc then
// category asc.
func buildRows(counts map[string]int, base int) []internal.AggregationRow {
	rows := make([]internal.AggregationRow, 0, len(counts))
	for cat, n := range counts {
		rows = append(rows, internal.AggregationRow{Category: cat, Count: n, Percentage: percent(n, base)})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Category < rows[j].Category
	})
	return rows
}

// CountByRow counts rows per non-missing value of column. TotalBase is the
// number of non-missing rows.
func CountByRow(t *internal.Table, column string) (internal.AggregationResult, error) {
	idx, err := columnIndex(t, column)
	if err != nil {
		return internal.AggregationResult{}, err
	}

	counts := map[string]int{}
	base := 0
	for _, row := range t.Rows {
		v := strings.TrimSpace(row[idx])
		if v == "" {
			continue
		}
		counts[v]++
		base++
	}

	return internal.AggregationResult{
		Column:    column,
		Basis:     internal.BasisRows,
		TotalBase: base,
		Rows:      buildRows(counts, base),
	}, nil
}

// CountByRespondent counts distinct respondents per non-missing value of
// column. A respondent repeating an option over several rows counts once;
// TotalBase is the number of distinct respondents with any value. Rows with
// an empty identifier cannot be attributed and are skipped.
func CountByRespondent(t *internal.Table, column, respondent string) (internal.AggregationResult, error) {
	idx, err := columnIndex(t, column)
	if err != nil {
		return internal.AggregationResult{}, err
	}
	rid, err := respondentIndex(t, respondent)
	if err != nil {
		return internal.AggregationResult{}, err
	}

	type pair struct{ id, value string }
	seen := map[pair]struct{}{}
	people := map[string]struct{}{}
	counts := map[string]int{}
	for _, row := range t.Rows {
		id := strings.TrimSpace(row[rid])
		v := strings.TrimSpace(row[idx])
		if id == "" || v == "" {
			continue
		}
		people[id] = struct{}{}
		key := pair{id: id, value: v}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		counts[v]++
	}

	return internal.AggregationResult{
		Column:    column,
		Basis:     internal.BasisRespondents,
		TotalBase: len(people),
		Rows:      buildRows(counts, len(people)),
	}, nil
}

// Count dispatches on basis.
func Count(t *internal.Table, column, respondent string, basis internal.CountBasis) (internal.AggregationResult, error) {
	if basis == internal.BasisRows {
		return CountByRow(t, column)
	}
	return CountByRespondent(t, column, respondent)
}

// ParseBasis reads a counting basis name. Empty means respondents.
func ParseBasis(raw string) (internal.CountBasis, error) {
	switch basis := internal.CountBasis(strings.ToLower(strings.TrimSpace(raw))); basis {
	case "":
		return internal.BasisRespondents, nil
	case internal.BasisRows, internal.BasisRespondents:
		return basis, nil
	default:
		return "", apperr.Newf(apperr.CodeInvalidInput, "unknown basis %q", raw)
	}
}

// CountSplit counts multi-reason answers ("a, b, c" in one cell). Each reason
// counts once per respondent; TotalBase is the number of respondents naming at
// least one reason. topN <= 0 keeps every reason.
func CountSplit(t *internal.Table, column, sep, respondent string, topN int) (internal.AggregationResult, error) {
	idx, err := columnIndex(t, column)
	if err != nil {
		return internal.AggregationResult{}, err
	}
	rid, err := respondentIndex(t, respondent)
	if err != nil {
		return internal.AggregationResult{}, err
	}
	if sep == "" {
		sep = ","
	}

	seen := map[[2]string]struct{}{}
	people := map[string]struct{}{}
	counts := map[string]int{}
	for _, row := range t.Rows {
		id := strings.TrimSpace(row[rid])
		if id == "" {
			continue
		}
		for _, part := range strings.Split(row[idx], sep) {
			reason := strings.TrimSpace(part)
			if reason == "" {
				continue
			}
			people[id] = struct{}{}
			key := [2]string{id, reason}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			counts[reason]++
		}
	}

	rows := buildRows(counts, len(people))
	if topN > 0 && len(rows) > topN {
		rows = rows[:topN]
	}
	return internal.AggregationResult{
		Column:    column,
		Basis:     internal.BasisRespondents,
		TotalBase: len(people),
		Rows:      rows,
	}, nil
}

type ComparisonRow struct {
	Category          string  `json:"category"`
	Rows              int     `json:"rows"`
	RowPct            float64 `json:"rowPct"`
	Respondents       int     `json:"respondents"`
	RespondentPct     float64 `json:"respondentPct"`
	RowsPerRespondent float64 `json:"rowsPerRespondent"`
}

// Comparison shows both counting bases side by side. Each percentage uses
// its own base.
type Comparison struct {
	Column         string          `json:"column"`
	RowBase        int             `json:"rowBase"`
	RespondentBase int             `json:"respondentBase"`
	Rows           []ComparisonRow `json:"rows"`
}

// CompareBases explains multi-select inflation of an option column.
func CompareBases(t *internal.Table, column, respondent string) (Comparison, error) {
	byRow, err := CountByRow(t, column)
	if err != nil {
		return Comparison{}, err
	}
	byResp, err := CountByRespondent(t, column, respondent)
	if err != nil {
		return Comparison{}, err
	}

	out := Comparison{Column: column, RowBase: byRow.TotalBase, RespondentBase: byResp.TotalBase}
	for _, r := range byResp.Rows {
		rows := byRow.Count(r.Category)
		cmp := ComparisonRow{
			Category:      r.Category,
			Rows:          rows,
			RowPct:        percent(rows, byRow.TotalBase),
			Respondents:   r.Count,
			RespondentPct: r.Percentage,
		}
		if r.Count > 0 {
			cmp.RowsPerRespondent = math.Round(float64(rows)*100/float64(r.Count)) / 100
		}
		out.Rows = append(out.Rows, cmp)
	}
	// values only seen on rows without an identifier
	for _, r := range byRow.Rows {
		if byResp.Count(r.Category) == 0 {
			out.Rows = append(out.Rows, ComparisonRow{Category: r.Category, Rows: r.Count, RowPct: r.Percentage})
		}
	}
	return out, nil
}

// Presence counts, per question, the distinct respondents who answered it at
// all. TotalBase is every identified respondent in the table. Questions whose
// column is absent count zero.
func Presence(t *internal.Table, questions []internal.LikertQuestion, respondent string) (internal.AggregationResult, error) {
	rid, err := respondentIndex(t, respondent)
	if err != nil {
		return internal.AggregationResult{}, err
	}

	people := map[string]struct{}{}
	for _, row := range t.Rows {
		if id := strings.TrimSpace(row[rid]); id != "" {
			people[id] = struct{}{}
		}
	}

	rows := make([]internal.AggregationRow, 0, len(questions))
	for _, q := range questions {
		answered := map[string]struct{}{}
		if idx := t.Index(q.Column); idx >= 0 {
			for _, row := range t.Rows {
				id := strings.TrimSpace(row[rid])
				if id != "" && !internal.IsMissing(row[idx]) {
					answered[id] = struct{}{}
				}
			}
		}
		rows = append(rows, internal.AggregationRow{
			Category:   q.Label,
			Count:      len(answered),
			Percentage: percent(len(answered), len(people)),
		})
	}
	return internal.AggregationResult{
		Basis:     internal.BasisRespondents,
		TotalBase: len(people),
		Rows:      rows,
	}, nil
}
