package pipeline

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"

	"surveyboard/internal/apperr"
)

type sheetRows struct {
	name string
	rows [][]any
}

func mkXLSX(sheets ...sheetRows) []byte {
	f := excelize.NewFile()
	for i, s := range sheets {
		if i == 0 {
			_ = f.SetSheetName(f.GetSheetName(0), s.name)
		} else {
			_, _ = f.NewSheet(s.name)
		}
		for r, row := range s.rows {
			for c, v := range row {
				cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
				_ = f.SetCellValue(s.name, cell, v)
			}
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func TestReadWorkbookPicksResponseSheet(t *testing.T) {
	blob := mkXLSX(
		sheetRows{name: "Gráfico", rows: [][]any{{"Resumo"}, {"a", 1}}},
		sheetRows{name: "Respostas ao formulário 1", rows: [][]any{
			{"Pesquisa 2025"},
			{"Carimbo de data/hora", "respondent_id", "Qual a sua idade?", "", "Curso"},
			{"2025-03-01", "r1", 22, "", "Direito"},
			{"", "", "", "", ""},
			{"2025-03-02", "r2", 19, "x", " Medicina "},
		}},
	)

	wb, err := ReadTable("respostas.xlsx", blob)
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, wb.Format)
	assert.Equal(t, "Respostas ao formulário 1", wb.Sheet)
	assert.Equal(t, "respostas.xlsx", wb.Name)
	assert.Equal(t, []string{"Carimbo de data/hora", "respondent_id", "Qual a sua idade?", "unnamed_4", "Curso"}, wb.Table.Columns)
	require.Equal(t, 2, wb.Table.Len())
	assert.Equal(t, []string{"2025-03-01", "r1", "22", "", "Direito"}, wb.Table.Rows[0])
	assert.Equal(t, "Medicina", wb.Table.Rows[1][4])
}

func TestReadCSVDelimiterAndEncoding(t *testing.T) {
	latin, err := charmap.ISO8859_1.NewEncoder().String("respondent_id;Você é:;Comentário\nr1;Aluno;\"bom; mas caro\"\nr2;Egresso\n")
	require.NoError(t, err)

	wb, err := ReadTable("export.csv", []byte(latin))
	require.NoError(t, err)
	assert.Equal(t, "latin-1", wb.Encoding)
	assert.Equal(t, []string{"respondent_id", "Você é:", "Comentário"}, wb.Table.Columns)
	assert.Equal(t, [][]string{{"r1", "Aluno", "bom; mas caro"}, {"r2", "Egresso", ""}}, wb.Table.Rows)

	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a,b\n1,2\n")...)
	wb, err = ReadCSV(bom)
	require.NoError(t, err)
	assert.Equal(t, "utf-8-sig", wb.Encoding)
	assert.Equal(t, []string{"a", "b"}, wb.Table.Columns)
}

func TestReadHTMLTablePicksLargestTable(t *testing.T) {
	html := `<html><body>
<table><tr><td>assinatura</td></tr></table>
<table>
<tr><th>respondent_id</th><th>Idade</th></tr>
<tr><td>r1</td><td> 22 </td></tr>
<tr><td>r2</td><td>31</td></tr>
</table></body></html>`

	wb, err := ReadTable("mail.html", []byte(html))
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, wb.Format)
	assert.Equal(t, []string{"respondent_id", "Idade"}, wb.Table.Columns)
	assert.Equal(t, [][]string{{"r1", "22"}, {"r2", "31"}}, wb.Table.Rows)
}

func TestDetectFormat(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"a.xlsx", "", FormatXLSX},
		{"a.CSV", "", FormatCSV},
		{"a.htm", "", FormatHTML},
		{"download.bin", "PK\x03\x04rest", FormatXLSX},
		{"download.bin", "<html><table>", FormatHTML},
		{"", "a,b\n", FormatCSV},
		{"regulamento.pdf", "%PDF", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name+"/"+tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, DetectFormat(tc.name, []byte(tc.content)))
		})
	}
}

func TestReadTableErrors(t *testing.T) {
	_, err := ReadTable("regulamento.pdf", []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = ReadTable("vazio.csv", []byte("\n\n"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = ReadTable("quebrado.xlsx", []byte("not a zip"))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestDetectSurveySheet(t *testing.T) {
	rows := [][]string{{"Carimbo de data/hora", "respondent_id", "idade"}}
	for i := 0; i < 12; i++ {
		rows = append(rows, []string{"2025", "r", "20"})
	}
	responses := DetectSurveySheet("Form Responses 1", rows)
	chart := DetectSurveySheet("Gráficos", [][]string{{"total"}, {"12"}})
	empty := DetectSurveySheet("Plan1", nil)

	assert.InDelta(t, 1.0, responses.Score, 1e-9)
	assert.Contains(t, responses.Reason, "many_rows")
	assert.Less(t, chart.Score, responses.Score)
	assert.Equal(t, 0.0, empty.Score)
	assert.Equal(t, "empty", empty.Reason)
}
