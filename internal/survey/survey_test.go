package survey

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyboard/internal/apperr"
)

func TestDefaultConfig(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Version)

	for _, name := range []string{"respondent", "age", "profile", "course", "founder", "permanence", "dropout"} {
		_, ok := cfg.Role(name)
		assert.True(t, ok, "role %s", name)
	}

	prof, ok := cfg.Section("professores")
	require.True(t, ok)
	require.NotEmpty(t, prof.Charts)
	assert.Equal(t, ChartLikert, prof.Charts[0].Kind)
	assert.Len(t, prof.Charts[0].Questions, 8)

	perm, ok := cfg.Section("permanencia_evasao")
	require.True(t, ok)
	assert.Equal(t, ",", perm.Charts[0].Separator)
	assert.Equal(t, 12, perm.Charts[0].Top)
}

func TestParseRejectsInvalidConfig(t *testing.T) {
	cases := map[string]string{
		"version":      "version: 0\n",
		"kind":         "version: 1\nsections:\n  - id: a\n    charts:\n      - id: c\n        kind: pie\n        column: x\n",
		"unknown role": "version: 1\nsections:\n  - id: a\n    charts:\n      - id: c\n        kind: counts\n        role: ghost\n",
		"no column":    "version: 1\nsections:\n  - id: a\n    charts:\n      - id: c\n        kind: counts\n",
		"dup role":     "version: 1\nroles:\n  - name: a\n  - name: a\n",
		"basis":        "version: 1\nsections:\n  - id: a\n    charts:\n      - id: c\n        kind: counts\n        column: x\n        basis: people\n",
		"yaml":         "version: [",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(src))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInvalidInput))
		})
	}
}

func TestLoadOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: 2\nroles:\n  - name: age\n    names: [age_years]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Version)
	r, ok := cfg.Role("age")
	require.True(t, ok)
	assert.Equal(t, []string{"age_years"}, r.Names)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Version)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestResolver(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)

	columns := []string{"respondent_id", "qual_a_sua_idade", "voce_e_aluno_ou_egresso", "curso", "curso_de_graduacao_atual", "motivos_para_permanecer"}

	r := NewResolver(cfg, columns, true)
	cases := []struct {
		role   string
		column string
		reason Reason
	}{
		{"respondent", "respondent_id", ReasonExact},
		{"age", "qual_a_sua_idade", ReasonKeyword},
		{"profile", "voce_e_aluno_ou_egresso", ReasonKeyword},
		{"course", "curso_de_graduacao_atual", ReasonKeyword},
		{"permanence", "motivos_para_permanecer", ReasonKeyword},
		{"founder", "", ReasonNone},
		{"ghost", "", ReasonNone},
	}
	for _, tc := range cases {
		t.Run(tc.role, func(t *testing.T) {
			res := r.Resolve(tc.role)
			assert.Equal(t, tc.reason, res.Reason)
			assert.Equal(t, tc.column, res.Column)
			assert.Equal(t, tc.reason != ReasonNone, res.Found())
		})
	}

	strict := NewResolver(cfg, columns, false)
	assert.Equal(t, ReasonExact, strict.Resolve("respondent").Reason)
	assert.Equal(t, ReasonNone, strict.Resolve("age").Reason)
	assert.Len(t, strict.ResolveAll(), len(cfg.Roles))
}

func TestResolverKeywordNeedsWordStart(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	r := NewResolver(cfg, []string{"percurso_academico"}, true)
	assert.Equal(t, ReasonNone, r.Resolve("course").Reason)
}

func TestResolverChartColumn(t *testing.T) {
	cfg, err := Default()
	require.NoError(t, err)
	r := NewResolver(cfg, []string{"idade", "professores_experiencia_mercado"}, false)

	assert.Equal(t, "idade", r.Column(Chart{ID: "a", Kind: ChartAges, Role: "age"}).Column)
	assert.True(t, r.Column(Chart{ID: "b", Kind: ChartCounts, Column: "professores_experiencia_mercado"}).Found())
	assert.False(t, r.Column(Chart{ID: "c", Kind: ChartCounts, Column: "nope"}).Found())
}
