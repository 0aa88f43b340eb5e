package pipeline

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"surveyboard/internal"
	"surveyboard/internal/aggregate"
)

// WriteTableCSV writes the renamed, un-aggregated table as UTF-8 CSV with
// column and row order preserved.
func WriteTableCSV(w io.Writer, t *internal.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func ExportTableCSV(t *internal.Table, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := WriteTableCSV(f, t); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func tableWorkbook(t *internal.Table) *excelize.File {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	writeRow(f, sheet, 1, toAny(t.Columns))
	for i, row := range t.Rows {
		writeRow(f, sheet, i+2, toAny(row))
	}
	return f
}

// WriteTableXLSX writes the renamed table as a single-sheet workbook.
func WriteTableXLSX(w io.Writer, t *internal.Table) error {
	f := tableWorkbook(t)
	defer f.Close()
	return f.Write(w)
}

func ExportTableXLSX(t *internal.Table, outputPath string) error {
	f := tableWorkbook(t)
	defer f.Close()
	return save(f, outputPath)
}

// WriteReportXLSX writes one sheet with the summary and one sheet per
// section holding every chart's table.
func WriteReportXLSX(w io.Writer, r Report) error {
	f := excelize.NewFile()
	defer f.Close()

	summary := f.GetSheetName(0)
	if err := f.SetSheetName(summary, "resumo"); err != nil {
		return err
	}
	s := r.Summary
	rows := [][]any{
		{"indicador", "valor"},
		{"linhas", s.TotalRows},
		{"linhas_unicas", s.UniqueRows},
		{"duplicatas_exatas", s.ExactDuplicates},
		{"respondentes", derefInt(s.Respondents)},
		{"linhas_repetidas_por_id", derefInt(s.RepeatedByID)},
		{"linhas_repetidas_por_id_pct", derefFloat(s.RepeatedByIDPct)},
		{"idade_media", derefFloat(s.AgeMean)},
		{"idade_min", derefFloat(s.AgeMin)},
		{"idade_max", derefFloat(s.AgeMax)},
		{"idade_mediana", derefFloat(s.AgeMedian)},
	}
	for i, row := range rows {
		writeRow(f, "resumo", i+1, row)
	}

	for _, sec := range r.Sections {
		name := sheetName(sec.ID)
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
		line := 1
		if sec.Notice != "" {
			writeRow(f, name, line, []any{sec.Notice})
			continue
		}
		for _, ch := range sec.Charts {
			writeRow(f, name, line, []any{ch.Title, ch.Column})
			line++
			switch {
			case ch.Counts != nil:
				writeRow(f, name, line, []any{"categoria", "contagem", "percentual", "base", ch.Counts.TotalBase})
				line++
				for _, row := range ch.Counts.Rows {
					writeRow(f, name, line, []any{row.Category, row.Count, row.Percentage})
					line++
				}
			case len(ch.Likert) > 0:
				header := []any{"pergunta", "base", "indice"}
				for _, label := range aggregate.LikertLabels {
					header = append(header, label)
				}
				writeRow(f, name, line, header)
				line++
				for _, d := range ch.Likert {
					row := []any{d.Question.Label, d.TotalBase, derefFloat(d.Index)}
					for _, rating := range d.Ratings {
						row = append(row, rating.Count)
					}
					writeRow(f, name, line, row)
					line++
				}
			default:
				writeRow(f, name, line, []any{ch.Notice})
				line++
			}
			line++
		}
	}

	_, err := f.WriteTo(w)
	return err
}

func ExportReportXLSX(r Report, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	if err := WriteReportXLSX(out, r); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func save(f *excelize.File, outputPath string) error {
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		return err
	}
	return f.SaveAs(outputPath)
}

// sheetName keeps a section id within the 31 character sheet name limit.
func sheetName(id string) string {
	if len(id) > 31 {
		return id[:31]
	}
	return id
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func derefFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func derefInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}
