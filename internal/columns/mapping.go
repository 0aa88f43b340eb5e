package columns

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
	"surveyboard/internal/util"
)

const (
	fieldOriginal  = "coluna_original"
	fieldTechnical = "nome_tecnico"
	fieldLabel     = "rotulo_publico"
	fieldCategory  = "classe"
)

var requiredFields = []string{fieldOriginal, fieldTechnical, fieldLabel, fieldCategory}

// headerSynonyms lists accepted (slugified) mapping file headers per logical field.
var headerSynonyms = map[string][]string{
	fieldOriginal:  {"coluna_original", "original", "coluna", "header_original"},
	fieldTechnical: {"nome_tecnico", "tecnico", "nome_padrao", "slug"},
	fieldLabel:     {"rotulo_publico", "rotulo", "label_publico", "label"},
	fieldCategory:  {"classe", "categoria", "grupo"},
}

type readAttempt struct {
	delimiter rune
	encoding  string
}

// Attempt order matters: the first combination yielding all four fields wins.
var readAttempts = []readAttempt{
	{delimiter: ',', encoding: util.EncodingUTF8SIG},
	{delimiter: ';', encoding: util.EncodingUTF8SIG},
	{delimiter: ',', encoding: util.EncodingLatin1},
	{delimiter: ';', encoding: util.EncodingLatin1},
}

// Mapping is a resolved column mapping table keyed both ways.
type Mapping struct {
	Source    internal.MappingSource
	Encoding  string
	Delimiter string
	// Skipped holds rows dropped to keep headers and technical names unique.
	Skipped []internal.MappingEntry

	entries     []internal.MappingEntry
	byOriginal  map[string]int
	byTechnical map[string]int
}

func newMapping(source internal.MappingSource) *Mapping {
	return &Mapping{
		Source:      source,
		byOriginal:  map[string]int{},
		byTechnical: map[string]int{},
	}
}

// add keeps the first entry per original header and per technical name.
func (m *Mapping) add(e internal.MappingEntry) bool {
	if _, ok := m.byOriginal[e.OriginalHeader]; ok {
		m.Skipped = append(m.Skipped, e)
		return false
	}
	if _, ok := m.byTechnical[e.TechnicalName]; ok {
		m.Skipped = append(m.Skipped, e)
		return false
	}
	m.entries = append(m.entries, e)
	m.byOriginal[e.OriginalHeader] = len(m.entries) - 1
	m.byTechnical[e.TechnicalName] = len(m.entries) - 1
	return true
}

func (m *Mapping) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

func (m *Mapping) Entries() []internal.MappingEntry {
	if m == nil {
		return nil
	}
	out := make([]internal.MappingEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Lookup finds the entry for a raw spreadsheet header.
func (m *Mapping) Lookup(original string) (internal.MappingEntry, bool) {
	if m == nil {
		return internal.MappingEntry{}, false
	}
	idx, ok := m.byOriginal[strings.TrimSpace(original)]
	if !ok {
		return internal.MappingEntry{}, false
	}
	return m.entries[idx], true
}

// Entry finds the entry for a technical name.
func (m *Mapping) Entry(technical string) (internal.MappingEntry, bool) {
	if m == nil {
		return internal.MappingEntry{}, false
	}
	idx, ok := m.byTechnical[technical]
	if !ok {
		return internal.MappingEntry{}, false
	}
	return m.entries[idx], true
}

// Label returns the public label of a technical name, or the name itself.
func (m *Mapping) Label(technical string) string {
	if e, ok := m.Entry(technical); ok && e.PublicLabel != "" {
		return e.PublicLabel
	}
	return technical
}

func (m *Mapping) Category(technical string) string {
	e, _ := m.Entry(technical)
	return e.Category
}

// LoadMappingFile reads a mapping table from disk.
func LoadMappingFile(path string) (*Mapping, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrapf(apperr.WithCode(apperr.CodeMappingLoad, err), "read mapping %s", path)
	}
	m, err := LoadMapping(bytes.NewReader(blob))
	if err != nil {
		return nil, err
	}
	m.Source = internal.MappingLocal
	return m, nil
}

// LoadMapping parses a mapping table trying comma/semicolon delimiters and
// UTF-8 (with optional BOM) / Latin-1 encodings. The returned error matches
// apperr.ErrMappingLoad when no attempt yields the four required columns.
func LoadMapping(r io.Reader) (*Mapping, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, apperr.Wrap(apperr.WithCode(apperr.CodeMappingLoad, err), "read mapping")
	}

	var lastErr error
	for _, attempt := range readAttempts {
		m, err := parseMapping(raw, attempt)
		if err != nil {
			lastErr = err
			continue
		}
		return m, nil
	}
	if lastErr == nil {
		lastErr = errors.New("empty mapping source")
	}
	return nil, &apperr.AppError{Code: apperr.CodeMappingLoad, Message: "mapping table could not be loaded", Cause: lastErr}
}

func parseMapping(raw []byte, attempt readAttempt) (*Mapping, error) {
	text, err := util.Decode(raw, attempt.encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = attempt.delimiter
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%s/%q: read header: %w", attempt.encoding, attempt.delimiter, err)
	}
	index := resolveFields(header)
	missing := []string{}
	for _, f := range requiredFields {
		if _, ok := index[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s/%q: missing required columns %v", attempt.encoding, attempt.delimiter, missing)
	}

	m := newMapping(internal.MappingUpload)
	m.Encoding = attempt.encoding
	m.Delimiter = string(attempt.delimiter)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// malformed line, keep going like a lenient reader would
			continue
		}
		entry := internal.MappingEntry{
			OriginalHeader: field(record, index[fieldOriginal]),
			TechnicalName:  field(record, index[fieldTechnical]),
			PublicLabel:    field(record, index[fieldLabel]),
			Category:       field(record, index[fieldCategory]),
		}
		if entry.OriginalHeader == "" || entry.TechnicalName == "" {
			continue
		}
		if entry.PublicLabel == "" {
			entry.PublicLabel = entry.OriginalHeader
		}
		m.add(entry)
	}
	return m, nil
}

// resolveFields maps each logical field to the first header column among its synonyms.
func resolveFields(header []string) map[string]int {
	slugs := make([]string, len(header))
	for i, h := range header {
		slugs[i] = Slugify(h)
	}
	out := map[string]int{}
	for _, target := range requiredFields {
		opts := headerSynonyms[target]
		for i, s := range slugs {
			if contains(opts, s) {
				out[target] = i
				break
			}
		}
	}
	return out
}

func field(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
