package pipeline

import (
	"strings"

	"surveyboard/internal/util"
)

type SheetScore struct {
	Sheet  string
	Score  float64
	Reason string
}

var (
	sheetNameKeywords  = []string{"respostas", "responses", "form", "pesquisa", "survey", "dados"}
	headerKeywords     = []string{"carimbo", "timestamp", "respondent", "idade", "curso", "email", "voce", "avalie", "como"}
	auxiliarySheetHint = []string{"grafico", "chart", "resumo", "summary", "legenda", "instruc"}
)

// DetectSurveySheet scores how much a sheet looks like raw form responses:
// a wide filled header, many data rows, survey-like header words and a
// responses-like sheet name. Summary or chart tabs are penalised.
func DetectSurveySheet(sheet string, rows [][]string) SheetScore {
	h := findHeaderRow(rows)
	if h < 0 {
		return SheetScore{Sheet: sheet, Score: 0, Reason: "empty"}
	}

	score := 0.0
	reasons := []string{}

	header := rows[h]
	filled := filledCount(header)
	if filled >= 3 {
		score += 0.2
		reasons = append(reasons, "wide_header")
	}

	dataRows := 0
	for _, row := range rows[h+1:] {
		if lastFilled(row) >= 0 {
			dataRows++
		}
	}
	switch {
	case dataRows >= 10:
		score += 0.35
		reasons = append(reasons, "many_rows")
	case dataRows > 0:
		score += 0.15
		reasons = append(reasons, "some_rows")
	}

	hits := 0
	for _, cell := range header {
		folded := " " + util.FoldKey(cell)
		for _, kw := range headerKeywords {
			if strings.Contains(folded, " "+kw) {
				hits++
				break
			}
		}
	}
	if hits > 0 {
		score += 0.25
		reasons = append(reasons, "survey_headers")
	}

	name := util.FoldKey(sheet)
	for _, kw := range sheetNameKeywords {
		if strings.Contains(name, kw) {
			score += 0.2
			reasons = append(reasons, "sheet_name")
			break
		}
	}
	for _, kw := range auxiliarySheetHint {
		if strings.Contains(name, kw) {
			score -= 0.3
			reasons = append(reasons, "auxiliary_sheet")
			break
		}
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return SheetScore{Sheet: sheet, Score: score, Reason: strings.Join(reasons, ",")}
}
