package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"surveyboard/internal"
	"surveyboard/internal/aggregate"
	"surveyboard/internal/apperr"
	"surveyboard/internal/columns"
	"surveyboard/internal/survey"
)

const (
	noticeMissingColumn     = "Coluna não encontrada nesta base."
	noticeMissingIdentifier = "Identificador de respondente ausente; contagem por pessoa indisponível."
	noticeNoAnswers         = "Nenhuma resposta válida para este gráfico."
	noticeSectionEmpty      = "Seção indisponível para esta base."
)

type ReportOptions struct {
	Name             string
	RespondentColumn string
	AgeColumn        string
	// AllowKeywords enables keyword probing of headers; sessions with a
	// mapping table resolve exact names only.
	AllowKeywords bool
	Mapping       *columns.Mapping
}

// ChartResult holds the numbers behind one dashboard chart. Exactly one of
// Counts or Likert is set, or Notice explains why neither is.
type ChartResult struct {
	ID     string                        `json:"id"`
	Title  string                        `json:"title"`
	Kind   survey.ChartKind              `json:"kind"`
	Column string                        `json:"column,omitempty"`
	Reason survey.Reason                 `json:"reason,omitempty"`
	Counts *internal.AggregationResult   `json:"counts,omitempty"`
	Likert []internal.LikertDistribution `json:"likert,omitempty"`
	Notice string                        `json:"notice,omitempty"`
}

type SectionReport struct {
	ID     string        `json:"id"`
	Title  string        `json:"title"`
	Charts []ChartResult `json:"charts"`
	Notice string        `json:"notice,omitempty"`
}

type Report struct {
	Name        string              `json:"name"`
	GeneratedAt string              `json:"generatedAt"`
	Summary     internal.Summary    `json:"summary"`
	Roles       []survey.Resolution `json:"roles"`
	Sections    []SectionReport     `json:"sections"`
}

// Section returns the computed section with the given id.
func (r Report) Section(id string) (SectionReport, bool) {
	for _, s := range r.Sections {
		if s.ID == id {
			return s, true
		}
	}
	return SectionReport{}, false
}

// BuildReport computes every configured section over a renamed table.
// Missing columns never fail the report; the affected chart carries a Notice.
func BuildReport(t *internal.Table, cfg *survey.Config, opts ReportOptions) Report {
	resolver := survey.NewResolver(cfg, t.Columns, opts.AllowKeywords)
	respondent := roleColumn(t, resolver, opts.RespondentColumn, "respondent")
	age := roleColumn(t, resolver, opts.AgeColumn, "age")

	r := Report{
		Name:        opts.Name,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Summary:     aggregate.Summarize(t, respondent, age),
		Roles:       resolver.ResolveAll(),
	}

	for _, sec := range cfg.Sections {
		out := SectionReport{ID: sec.ID, Title: sec.Title, Charts: make([]ChartResult, 0, len(sec.Charts))}
		available := 0
		for _, ch := range sec.Charts {
			res := buildChart(t, resolver, ch, respondent, opts.Mapping)
			if res.Notice == "" {
				available++
			}
			out.Charts = append(out.Charts, res)
		}
		if available == 0 {
			out.Notice = noticeSectionEmpty
		}
		r.Sections = append(r.Sections, out)
	}
	return r
}

// roleColumn prefers the configured column name and falls back to the role
// resolver. The configured name is returned when neither finds a column so
// errors name what was looked for.
func roleColumn(t *internal.Table, resolver *survey.Resolver, configured, role string) string {
	if configured != "" && t.Has(configured) {
		return configured
	}
	if res := resolver.Resolve(role); res.Found() {
		return res.Column
	}
	return configured
}

func buildChart(t *internal.Table, resolver *survey.Resolver, ch survey.Chart, respondent string, m *columns.Mapping) ChartResult {
	res := ChartResult{ID: ch.ID, Title: ch.Title, Kind: ch.Kind}

	switch ch.Kind {
	case survey.ChartLikert:
		dists, err := aggregate.LikertMatrix(t, ch.Questions, respondent)
		if err != nil {
			res.Notice = noticeFor(err)
			return res
		}
		missing := 0
		for _, d := range dists {
			if d.Missing {
				missing++
			}
		}
		if missing == len(dists) {
			res.Notice = noticeMissingColumn
			return res
		}
		res.Likert = dists
		return res

	case survey.ChartPresence:
		counts, err := aggregate.Presence(t, ch.Questions, respondent)
		if err != nil {
			res.Notice = noticeFor(err)
			return res
		}
		res.Counts = &counts
		return res
	}

	col := resolver.Column(ch)
	res.Reason = col.Reason
	if !col.Found() {
		res.Notice = noticeMissingColumn
		return res
	}
	res.Column = col.Column
	if res.Title == "" {
		res.Title = m.Label(col.Column)
	}

	var (
		counts internal.AggregationResult
		err    error
	)
	switch ch.Kind {
	case survey.ChartAges:
		counts, err = aggregate.AgeBuckets(t, col.Column, respondent)
	case survey.ChartSplit:
		counts, err = aggregate.CountSplit(t, col.Column, ch.Separator, respondent, ch.Top)
	default:
		basis := ch.Basis
		if basis == "" {
			basis = internal.BasisRespondents
		}
		counts, err = aggregate.Count(t, col.Column, respondent, basis)
		if err == nil && ch.Top > 0 && len(counts.Rows) > ch.Top {
			counts.Rows = counts.Rows[:ch.Top]
		}
	}
	if err != nil {
		res.Notice = noticeFor(err)
		return res
	}
	if counts.TotalBase == 0 {
		res.Notice = noticeNoAnswers
	}
	res.Counts = &counts
	return res
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, apperr.ErrMissingIdentifier):
		return noticeMissingIdentifier
	case errors.Is(err, apperr.ErrMissingColumn):
		return noticeMissingColumn
	default:
		internal.DefaultLogger.Error("report: %v", err)
		return err.Error()
	}
}

// RenderReportMarkdown writes the report as Markdown tables.
func RenderReportMarkdown(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", firstNonEmpty(r.Name, "Pesquisa"))

	s := r.Summary
	b.WriteString("| Indicador | Valor |\n|---|---|\n")
	fmt.Fprintf(&b, "| Linhas | %d |\n", s.TotalRows)
	fmt.Fprintf(&b, "| Linhas únicas | %d |\n", s.UniqueRows)
	fmt.Fprintf(&b, "| Duplicatas exatas | %d |\n", s.ExactDuplicates)
	fmt.Fprintf(&b, "| Respondentes | %s |\n", intOrDash(s.Respondents))
	fmt.Fprintf(&b, "| Linhas repetidas por ID | %s |\n", intOrDash(s.RepeatedByID))
	fmt.Fprintf(&b, "| Idade média | %s |\n", floatOrDash(s.AgeMean))
	fmt.Fprintf(&b, "| Idade mediana | %s |\n", floatOrDash(s.AgeMedian))
	b.WriteString("\n")

	for _, sec := range r.Sections {
		fmt.Fprintf(&b, "## %s\n\n", sec.Title)
		if sec.Notice != "" {
			fmt.Fprintf(&b, "> %s\n\n", sec.Notice)
			continue
		}
		for _, ch := range sec.Charts {
			fmt.Fprintf(&b, "### %s\n\n", ch.Title)
			switch {
			case ch.Notice != "" && ch.Counts == nil:
				fmt.Fprintf(&b, "> %s\n\n", ch.Notice)
			case ch.Counts != nil:
				writeCounts(&b, *ch.Counts)
			case len(ch.Likert) > 0:
				writeLikert(&b, ch.Likert)
			}
		}
	}
	return b.String()
}

func writeCounts(b *strings.Builder, c internal.AggregationResult) {
	fmt.Fprintf(b, "Base: %d (%s)\n\n", c.TotalBase, c.Basis)
	b.WriteString("| Categoria | Contagem | % |\n|---|---:|---:|\n")
	for _, row := range c.Rows {
		fmt.Fprintf(b, "| %s | %d | %.2f |\n", escapeCell(row.Category), row.Count, row.Percentage)
	}
	b.WriteString("\n")
}

func writeLikert(b *strings.Builder, dists []internal.LikertDistribution) {
	b.WriteString("| Pergunta | Base | Índice |")
	for _, label := range aggregate.LikertLabels {
		fmt.Fprintf(b, " %s |", label)
	}
	b.WriteString("\n|---|---:|---:|")
	for range aggregate.LikertLabels {
		b.WriteString("---:|")
	}
	b.WriteString("\n")
	for _, d := range dists {
		fmt.Fprintf(b, "| %s | %d | %s |", escapeCell(d.Question.Label), d.TotalBase, floatOrDash(d.Index))
		for _, r := range d.Ratings {
			fmt.Fprintf(b, " %.2f |", r.Percentage)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// RenderReportHTML renders the Markdown report as a complete HTML page.
func RenderReportHTML(r Report) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.CompletePage,
		Title: firstNonEmpty(r.Name, "Pesquisa"),
	})
	return markdown.ToHTML([]byte(RenderReportMarkdown(r)), p, renderer)
}

func escapeCell(v string) string {
	var buf bytes.Buffer
	for _, r := range v {
		if r == '|' {
			buf.WriteString(`\|`)
			continue
		}
		if r == '\n' || r == '\r' {
			buf.WriteRune(' ')
			continue
		}
		buf.WriteRune(r)
	}
	return buf.String()
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
