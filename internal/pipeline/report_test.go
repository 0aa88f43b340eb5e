package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"surveyboard/internal"
	"surveyboard/internal/aggregate"
	"surveyboard/internal/survey"
)

func surveyTable() *internal.Table {
	return internal.NewTable(
		[]string{"respondent_id", "idade", "voce_e", "curso_graduacao", "professores_inconformismo_transformacao", "professores_visao_oportunidades", "permanencia_motivos"},
		[][]string{
			{"r1", "22", "Aluno", "Direito", "5", "4", "Amigos, Bolsa"},
			{"r1", "22", "Aluno", "Direito", "5", "4", "Amigos, Bolsa"},
			{"r2", "19", "Egresso", "Medicina", "Bom", "Não se aplica", "Bolsa"},
			{"r3", "abc", "Aluno", "Direito", "3", "", ""},
		},
	)
}

func chart(t *testing.T, r Report, section, id string) ChartResult {
	t.Helper()
	sec, ok := r.Section(section)
	require.True(t, ok, "section %s", section)
	for _, ch := range sec.Charts {
		if ch.ID == id {
			return ch
		}
	}
	t.Fatalf("chart %s not in section %s", id, section)
	return ChartResult{}
}

func buildTestReport(t *testing.T) Report {
	t.Helper()
	cfg, err := survey.Default()
	require.NoError(t, err)
	return BuildReport(surveyTable(), cfg, ReportOptions{
		Name:             "pesquisa.xlsx",
		RespondentColumn: "respondent_id",
		AgeColumn:        "idade",
	})
}

func TestBuildReport(t *testing.T) {
	r := buildTestReport(t)

	assert.Equal(t, 4, r.Summary.TotalRows)
	assert.Equal(t, 1, r.Summary.ExactDuplicates)
	require.NotNil(t, r.Summary.Respondents)
	assert.Equal(t, 3, *r.Summary.Respondents)

	profile := chart(t, r, "perfil", "perfil_voce_e")
	require.NotNil(t, profile.Counts)
	assert.Equal(t, internal.BasisRespondents, profile.Counts.Basis)
	assert.Equal(t, 3, profile.Counts.TotalBase)
	assert.Equal(t, 2, profile.Counts.Count("Aluno"))
	assert.Equal(t, survey.ReasonExact, profile.Reason)

	ages := chart(t, r, "perfil", "perfil_idade")
	require.NotNil(t, ages.Counts)
	assert.Len(t, ages.Counts.Rows, 4)
	assert.Equal(t, 1, ages.Counts.Count(aggregate.AgeUpTo19))
	assert.Equal(t, 1, ages.Counts.Count(aggregate.Age20To25))

	professors := chart(t, r, "professores", "professores_caracteristicas")
	require.Len(t, professors.Likert, 8)
	first := professors.Likert[0]
	assert.Equal(t, 3, first.TotalBase)
	require.NotNil(t, first.Index)
	assert.InDelta(t, 80.0, *first.Index, 1e-9)
	assert.Equal(t, 1, professors.Likert[1].TotalBase)
	assert.True(t, professors.Likert[2].Missing)

	reasons := chart(t, r, "permanencia_evasao", "permanencia_motivos")
	require.NotNil(t, reasons.Counts)
	assert.Equal(t, 2, reasons.Counts.TotalBase)
	assert.Equal(t, "Bolsa", reasons.Counts.Rows[0].Category)
	assert.Equal(t, 2, reasons.Counts.Rows[0].Count)

	dropout := chart(t, r, "permanencia_evasao", "evasao_motivos")
	assert.Equal(t, noticeMissingColumn, dropout.Notice)
	assert.Nil(t, dropout.Counts)

	infra, ok := r.Section("infraestrutura")
	require.True(t, ok)
	assert.Equal(t, noticeSectionEmpty, infra.Notice)
}

func TestBuildReportWithoutIdentifier(t *testing.T) {
	cfg, err := survey.Default()
	require.NoError(t, err)
	tbl := internal.NewTable([]string{"voce_e"}, [][]string{{"Aluno"}})

	r := BuildReport(tbl, cfg, ReportOptions{RespondentColumn: "respondent_id", AgeColumn: "idade"})
	assert.True(t, r.Summary.MissingIdentifier)
	assert.Equal(t, noticeMissingIdentifier, chart(t, r, "perfil", "perfil_voce_e").Notice)
}

func TestBuildReportKeywordRoles(t *testing.T) {
	cfg, err := survey.Default()
	require.NoError(t, err)
	tbl := internal.NewTable(
		[]string{"respondent_id", "qual_a_sua_idade"},
		[][]string{{"r1", "18"}, {"r2", "40"}},
	)

	r := BuildReport(tbl, cfg, ReportOptions{RespondentColumn: "respondent_id", AgeColumn: "idade", AllowKeywords: true})
	ages := chart(t, r, "perfil", "perfil_idade")
	assert.Equal(t, survey.ReasonKeyword, ages.Reason)
	assert.Equal(t, "qual_a_sua_idade", ages.Column)
	require.NotNil(t, r.Summary.AgeMean)
	assert.InDelta(t, 29.0, *r.Summary.AgeMean, 1e-9)

	strict := BuildReport(tbl, cfg, ReportOptions{RespondentColumn: "respondent_id", AgeColumn: "idade"})
	assert.Equal(t, noticeMissingColumn, chart(t, strict, "perfil", "perfil_idade").Notice)
}

func TestRenderReport(t *testing.T) {
	r := buildTestReport(t)

	md := RenderReportMarkdown(r)
	assert.True(t, strings.HasPrefix(md, "# pesquisa.xlsx\n"))
	assert.Contains(t, md, "## Professores")
	assert.Contains(t, md, "| Inconformismo | 3 | 80.0 |")
	assert.Contains(t, md, "> "+noticeSectionEmpty)

	html := string(RenderReportHTML(r))
	assert.Contains(t, html, "<title>pesquisa.xlsx</title>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "Professores</h2>")
}

func TestWriteReportXLSX(t *testing.T) {
	r := buildTestReport(t)

	var buf bytes.Buffer
	require.NoError(t, WriteReportXLSX(&buf, r))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	sheets := f.GetSheetList()
	assert.Equal(t, "resumo", sheets[0])
	assert.Contains(t, sheets, "professores")
	assert.Contains(t, sheets, "permanencia_evasao")

	rows, err := f.GetRows("resumo")
	require.NoError(t, err)
	assert.Equal(t, []string{"linhas", "4"}, rows[1])

	rows, err = f.GetRows("infraestrutura")
	require.NoError(t, err)
	assert.Equal(t, noticeSectionEmpty, rows[0][0])
}

func TestWriteTableCSV(t *testing.T) {
	tbl := internal.NewTable([]string{"respondent_id", "comentario"}, [][]string{{"r2", "bom, barato"}, {"r1", ""}})

	var buf bytes.Buffer
	require.NoError(t, WriteTableCSV(&buf, tbl))
	assert.Equal(t, "respondent_id,comentario\nr2,\"bom, barato\"\nr1,\n", buf.String())
}

func TestWriteTableXLSX(t *testing.T) {
	tbl := internal.NewTable([]string{"respondent_id", "voce_e"}, [][]string{{"r1", "Aluno"}, {"r2", "Egresso"}})

	var buf bytes.Buffer
	require.NoError(t, WriteTableXLSX(&buf, tbl))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(f.GetSheetName(0))
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"respondent_id", "voce_e"}, {"r1", "Aluno"}, {"r2", "Egresso"}}, rows)
}
