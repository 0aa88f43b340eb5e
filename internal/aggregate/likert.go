package aggregate

import (
	"strings"

	"github.com/montanaflynn/stats"

	"surveyboard/internal"
	"surveyboard/internal/util"
)

type LikertKind int

const (
	LikertValid LikertKind = iota
	LikertNeutral
	LikertUnparsed
)

// LikertLabels are the display labels of ratings 1..5.
var LikertLabels = [5]string{"1 Very Poor", "2 Poor", "3 Fair", "4 Good", "5 Excellent"}

var neutralMarkers = foldSet(
	"not observed", "not applicable", "nao observado", "não observado",
	"nao se aplica", "não se aplica", "nao aplicavel", "não aplicável",
	"n/a", "na",
)

var likertLabelTable = map[string]int{
	"very poor":  1,
	"muito ruim": 1,
	"poor":       2,
	"ruim":       2,
	"fair":       3,
	"regular":    3,
	"good":       4,
	"bom":        4,
	"boa":        4,
	"excellent":  5,
	"excelente":  5,
	"otimo":      5,
	"otima":      5,
}

func foldSet(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[util.FoldKey(v)] = struct{}{}
	}
	return out
}

// ParseLikert classifies one raw cell. Neutral markers and empty cells are
// LikertNeutral; a leading digit 1-5 or a canonical label is LikertValid;
// anything else is LikertUnparsed.
func ParseLikert(raw string) (int, LikertKind) {
	key := util.FoldKey(raw)
	if key == "" {
		return 0, LikertNeutral
	}
	if _, ok := neutralMarkers[key]; ok {
		return 0, LikertNeutral
	}
	if c := key[0]; c >= '1' && c <= '5' && (len(key) == 1 || key[1] < '0' || key[1] > '9') {
		return int(c - '0'), LikertValid
	}
	if r, ok := likertLabelTable[key]; ok {
		return r, LikertValid
	}
	return 0, LikertUnparsed
}

// LikertScore maps a 1-5 rating onto the 0-100 index scale.
func LikertScore(rating int) float64 {
	return float64(rating * 20)
}

type LikertDetail struct {
	Index    *float64 `json:"index"`
	Valid    int      `json:"valid"`
	Neutral  int      `json:"neutral"`
	Unparsed int      `json:"unparsed"`
}

// LikertIndexDetail is LikertIndex plus the per-kind counts of the series.
func LikertIndexDetail(values []string) LikertDetail {
	var d LikertDetail
	scores := make(stats.Float64Data, 0, len(values))
	for _, v := range values {
		rating, kind := ParseLikert(v)
		switch kind {
		case LikertValid:
			d.Valid++
			scores = append(scores, LikertScore(rating))
		case LikertNeutral:
			d.Neutral++
		default:
			d.Unparsed++
			internal.DefaultLogger.Debug("likert: unparsed value %q excluded", v)
		}
	}
	if len(scores) == 0 {
		return d
	}
	mean, err := stats.Mean(scores)
	if err != nil {
		return d
	}
	d.Index = &mean
	return d
}

// LikertIndex is the mean 0-100 score over valid ratings, nil when there are
// none. Neutral and unparsed values are left out of the denominator.
func LikertIndex(values []string) *float64 {
	return LikertIndexDetail(values).Index
}

// LikertMatrix computes one distribution per question. Counts are distinct
// respondents per rating and each question's base is its own set of
// respondents with a valid rating. Every distribution carries all five
// ratings. A question whose column is absent is returned empty with Missing
// set; a missing respondent column fails the whole matrix.
func LikertMatrix(t *internal.Table, questions []internal.LikertQuestion, respondent string) ([]internal.LikertDistribution, error) {
	rid, err := respondentIndex(t, respondent)
	if err != nil {
		return nil, err
	}

	out := make([]internal.LikertDistribution, 0, len(questions))
	for _, q := range questions {
		out = append(out, likertDistribution(t, q, rid))
	}
	return out, nil
}

func likertDistribution(t *internal.Table, q internal.LikertQuestion, rid int) internal.LikertDistribution {
	dist := internal.LikertDistribution{Question: q}
	var counts [5]int

	idx := t.Index(q.Column)
	if idx < 0 {
		dist.Missing = true
	} else {
		seen := map[[2]string]struct{}{}
		people := map[string]struct{}{}
		scores := stats.Float64Data{}
		for _, row := range t.Rows {
			id := strings.TrimSpace(row[rid])
			rating, kind := ParseLikert(row[idx])
			if kind == LikertUnparsed {
				dist.Unparsed++
				internal.DefaultLogger.Debug("likert %s: unparsed value %q excluded", q.Column, row[idx])
				continue
			}
			if kind != LikertValid || id == "" {
				continue
			}
			people[id] = struct{}{}
			key := [2]string{id, LikertLabels[rating-1]}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			counts[rating-1]++
			scores = append(scores, LikertScore(rating))
		}
		dist.TotalBase = len(people)
		if mean, err := stats.Mean(scores); err == nil && len(scores) > 0 {
			dist.Index = &mean
		}
	}

	dist.Ratings = make([]internal.LikertRating, 0, len(LikertLabels))
	for i, label := range LikertLabels {
		dist.Ratings = append(dist.Ratings, internal.LikertRating{
			Rating:     i + 1,
			Label:      label,
			Count:      counts[i],
			Percentage: ratingPercent(counts[i], counts),
		})
	}
	return dist
}

// ratingPercent uses the sum of rating counts as base so the five shares add
// up to 100 even when a respondent gave two different ratings.
func ratingPercent(count int, counts [5]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	return percent(count, total)
}
