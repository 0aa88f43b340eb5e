package columns

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var reTechnical = regexp.MustCompile(`^[a-z0-9_]{0,120}$`)

func TestSlugify(t *testing.T) {
	cases := []struct {
		name  string
		input any
		want  string
	}{
		{name: "accents", input: "Você é:", want: "voce_e"},
		{name: "bom and spaces", input: "\ufeff  Idade  ", want: "idade"},
		{name: "parentheses", input: "Infraestrutura (Biblioteca)", want: "infraestrutura_biblioteca"},
		{name: "slashes", input: "Sócio/fundador\\outro", want: "socio_fundador_outro"},
		{name: "quotes", input: `O "conceito" de “empreender”`, want: "o_conceito_de_empreender"},
		{name: "ascii apostrophe", input: "Aluno's curso", want: "alunos_curso"},
		{name: "dashes and line breaks", input: "Labs – pesquisa\nexperimental", want: "labs_pesquisa_experimental"},
		{name: "already slug", input: "respondent_id", want: "respondent_id"},
		{name: "punctuation only", input: "?!", want: ""},
		{name: "integer", input: 42, want: "42"},
		{name: "nil", input: nil, want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Slugify(tc.input))
		})
	}
}

func TestSlugifyTruncatesWithoutTrailingUnderscore(t *testing.T) {
	header := strings.Repeat("a", 119) + " " + strings.Repeat("b", 20)
	got := Slugify(header)
	assert.Equal(t, strings.Repeat("a", 119), got)
	assert.LessOrEqual(t, len(Slugify(strings.Repeat("Questão longa ", 40))), MaxTechnicalNameLen)
}

func TestSlugifyIdempotentAndSafe(t *testing.T) {
	headers := []string{
		"Você é:",
		"Em relação aos professores do seu curso, como você avalia: [Inconformismo e transformação]",
		"  ((Curso)) de   graduação / habilitação  ",
		"ÁÉÍÓÚ ãõ ç ñ ü",
		"Quais motivos te fazem permanecer no CEFET-MG? (marque até 3)",
		"\ufeffrespondent_id",
		"日本語 header",
		strings.Repeat("Pergunta com muitas palavras ", 20),
		"",
		"___",
	}
	for _, h := range headers {
		once := Slugify(h)
		assert.Equal(t, once, Slugify(once), "not idempotent for %q", h)
		assert.Regexp(t, reTechnical, once, "unsafe slug for %q", h)
	}
}
