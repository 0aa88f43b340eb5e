package columns

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
)

func TestLoadMappingComma(t *testing.T) {
	src := "coluna_original,nome_tecnico,rotulo_publico,classe\n" +
		"Você é:,voce_e,Perfil,perfil\n" +
		"IDADE,idade,,perfil\n"
	m, err := LoadMapping(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, ",", m.Delimiter)
	assert.Equal(t, "utf-8-sig", m.Encoding)

	e, ok := m.Lookup("Você é:")
	require.True(t, ok)
	assert.Equal(t, "voce_e", e.TechnicalName)
	assert.Equal(t, "Perfil", m.Label("voce_e"))
	assert.Equal(t, "perfil", m.Category("voce_e"))
	assert.Equal(t, "IDADE", m.Label("idade"), "empty label falls back to the header")
	assert.Equal(t, "unknown", m.Label("unknown"))
}

func TestLoadMappingSemicolonWithBOMAndSynonyms(t *testing.T) {
	src := "\ufeffHeader Original;Slug;Label;Grupo\n" +
		"Curso;curso_graduacao;Curso de graduação;perfil\n"
	m, err := LoadMapping(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, ";", m.Delimiter)
	assert.Equal(t, "utf-8-sig", m.Encoding)
	e, ok := m.Entry("curso_graduacao")
	require.True(t, ok)
	assert.Equal(t, "Curso", e.OriginalHeader)
	assert.Equal(t, "Curso de graduação", e.PublicLabel)
}

func TestLoadMappingLatin1(t *testing.T) {
	utf := "coluna;nome_tecnico;rótulo;categoria\nInstituição;instituicao;Instituição de ensino;perfil\n"
	latin, err := charmap.ISO8859_1.NewEncoder().String(utf)
	require.NoError(t, err)

	m, err := LoadMapping(bytes.NewReader([]byte(latin)))
	require.NoError(t, err)
	assert.Equal(t, "latin-1", m.Encoding)
	assert.Equal(t, ";", m.Delimiter)
	e, ok := m.Lookup("Instituição")
	require.True(t, ok)
	assert.Equal(t, "instituicao", e.TechnicalName)
}

func TestLoadMappingFirstWinsOnDuplicates(t *testing.T) {
	src := "coluna_original,nome_tecnico,rotulo_publico,classe\n" +
		"A,a,First,x\n" +
		"A,a2,Second,x\n" +
		"B,a,Third,x\n"
	m, err := LoadMapping(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Len())
	assert.Len(t, m.Skipped, 2)
	assert.Equal(t, "First", m.Label("a"))
}

func TestLoadMappingMissingColumns(t *testing.T) {
	_, err := LoadMapping(strings.NewReader("original,tecnico\nA,a\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrMappingLoad))
	assert.Equal(t, apperr.CodeMappingLoad, apperr.GetCode(err))

	_, err = LoadMapping(strings.NewReader(""))
	assert.True(t, errors.Is(err, apperr.ErrMappingLoad))
}

func TestResolveMappingFallsBack(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "columns_classification.csv")
	require.NoError(t, os.WriteFile(local, []byte("coluna_original,nome_tecnico,rotulo_publico,classe\nIDADE,idade,Idade,perfil\n"), 0o644))

	m, src := ResolveMapping(strings.NewReader("garbage"), local)
	require.NotNil(t, m)
	assert.Equal(t, internal.MappingLocal, src)
	assert.Equal(t, internal.MappingLocal, m.Source)

	m, src = ResolveMapping(nil, filepath.Join(dir, "missing.csv"))
	assert.Nil(t, m)
	assert.Equal(t, internal.MappingAuto, src)

	require.NoError(t, os.WriteFile(local, []byte("nothing useful"), 0o644))
	m, src = ResolveMapping(nil, local)
	assert.Nil(t, m)
	assert.Equal(t, internal.MappingAuto, src)
}
