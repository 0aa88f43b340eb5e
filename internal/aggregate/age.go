package aggregate

import (
	"strings"

	"surveyboard/internal"
	"surveyboard/internal/util"
)

const (
	AgeUpTo19 = "≤19"
	Age20To25 = "20–25"
	Age26To30 = "26–30"
	AgeOver30 = "30+"
)

// AgeBucketOrder is the fixed output order of AgeBuckets.
var AgeBucketOrder = []string{AgeUpTo19, Age20To25, Age26To30, AgeOver30}

// AgeBucket places an age using closed upper bounds: 19, 25, 30, then open.
func AgeBucket(age float64) string {
	switch {
	case age <= 19:
		return AgeUpTo19
	case age <= 25:
		return Age20To25
	case age <= 30:
		return Age26To30
	default:
		return AgeOver30
	}
}

// parseAge is util.ParseNumber restricted to non negative values.
func parseAge(raw string) (float64, bool) {
	v := util.ParseNumber(raw)
	if v == nil || *v < 0 {
		return 0, false
	}
	return *v, true
}

// respondentAges returns one age per respondent, the first parseable one in
// row order. With rid < 0 every row is its own respondent.
func respondentAges(t *internal.Table, ageIdx, rid int) []float64 {
	ages := []float64{}
	seen := map[string]struct{}{}
	for _, row := range t.Rows {
		age, ok := parseAge(row[ageIdx])
		if !ok {
			continue
		}
		if rid >= 0 {
			id := strings.TrimSpace(row[rid])
			if id == "" {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		ages = append(ages, age)
	}
	return ages
}

// AgeBuckets counts distinct respondents per age bucket. The result always has
// the four buckets in AgeBucketOrder, zero counts included; unparseable ages
// are missing and never land in a bucket.
func AgeBuckets(t *internal.Table, ageColumn, respondent string) (internal.AggregationResult, error) {
	ageIdx, err := columnIndex(t, ageColumn)
	if err != nil {
		return internal.AggregationResult{}, err
	}
	rid, err := respondentIndex(t, respondent)
	if err != nil {
		return internal.AggregationResult{}, err
	}

	counts := map[string]int{}
	ages := respondentAges(t, ageIdx, rid)
	for _, age := range ages {
		counts[AgeBucket(age)]++
	}

	rows := make([]internal.AggregationRow, 0, len(AgeBucketOrder))
	for _, label := range AgeBucketOrder {
		rows = append(rows, internal.AggregationRow{
			Category:   label,
			Count:      counts[label],
			Percentage: percent(counts[label], len(ages)),
		})
	}
	return internal.AggregationResult{
		Column:    ageColumn,
		Basis:     internal.BasisRespondents,
		TotalBase: len(ages),
		Rows:      rows,
	}, nil
}
