package internal

import "strings"

// Table is a rectangular response table. Every row has len(Columns) cells and an
// empty cell (after trimming) is treated as missing.
type Table struct {
	Columns []string
	Rows    [][]string
}

// NewTable builds a table, padding or truncating rows to the header width.
func NewTable(columns []string, rows [][]string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	out := make([][]string, 0, len(rows))
	for _, row := range rows {
		r := make([]string, len(cols))
		copy(r, row)
		out = append(out, r)
	}
	return &Table{Columns: cols, Rows: out}
}

// Index returns the position of the named column or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) Has(name string) bool {
	return t.Index(name) >= 0
}

// Column returns the raw values of a column, or nil when it does not exist.
func (t *Table) Column(name string) []string {
	idx := t.Index(name)
	if idx < 0 {
		return nil
	}
	out := make([]string, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row[idx]
	}
	return out
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// WithColumns returns a copy sharing row data but carrying new column names.
func (t *Table) WithColumns(columns []string) *Table {
	cols := make([]string, len(columns))
	copy(cols, columns)
	return &Table{Columns: cols, Rows: t.Rows}
}

func IsMissing(v string) bool {
	return strings.TrimSpace(v) == ""
}

type CountBasis string

const (
	BasisRows        CountBasis = "rows"
	BasisRespondents CountBasis = "respondents"
)

type AggregationRow struct {
	Category   string  `json:"category"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// AggregationResult carries one category distribution. TotalBase is the
// denominator of every Percentage and is always of a single Basis.
type AggregationResult struct {
	Column    string           `json:"column"`
	Basis     CountBasis       `json:"basis"`
	TotalBase int              `json:"totalBase"`
	Rows      []AggregationRow `json:"rows"`
}

func (r AggregationResult) Count(category string) int {
	for _, row := range r.Rows {
		if row.Category == category {
			return row.Count
		}
	}
	return 0
}

// LikertQuestion pairs a display label with the column holding the ratings.
type LikertQuestion struct {
	Label  string `json:"label" yaml:"label"`
	Column string `json:"column" yaml:"column"`
}

type LikertRating struct {
	Rating     int     `json:"rating"`
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

type LikertDistribution struct {
	Question  LikertQuestion `json:"question"`
	TotalBase int            `json:"totalBase"`
	Index     *float64       `json:"index"`
	Unparsed  int            `json:"unparsed"`
	Missing   bool           `json:"missing,omitempty"`
	Ratings   []LikertRating `json:"ratings"`
}

// MappingEntry is one row of a column mapping table.
type MappingEntry struct {
	OriginalHeader string `json:"originalHeader"`
	TechnicalName  string `json:"technicalName"`
	PublicLabel    string `json:"publicLabel"`
	Category       string `json:"category"`
}

type MappingSource string

const (
	MappingUpload MappingSource = "upload"
	MappingLocal  MappingSource = "local"
	MappingAuto   MappingSource = "auto"
)

type Summary struct {
	TotalRows         int      `json:"totalRows"`
	UniqueRows        int      `json:"uniqueRows"`
	ExactDuplicates   int      `json:"exactDuplicates"`
	Respondents       *int     `json:"respondents"`
	RepeatedByID      *int     `json:"repeatedById"`
	RepeatedByIDPct   *float64 `json:"repeatedByIdPct"`
	AgeMean           *float64 `json:"ageMean"`
	AgeMin            *float64 `json:"ageMin"`
	AgeMax            *float64 `json:"ageMax"`
	AgeMedian         *float64 `json:"ageMedian"`
	AgeRespondents    int      `json:"ageRespondents"`
	ColumnCount       int      `json:"columnCount"`
	RespondentColumn  string   `json:"respondentColumn"`
	AgeColumn         string   `json:"ageColumn"`
	MissingIdentifier bool     `json:"missingIdentifier"`
}

type SourceStatus string

const (
	SourceFetched   SourceStatus = "fetched"
	SourceProcessed SourceStatus = "processed"
	SourceExported  SourceStatus = "exported"
	SourceSkipped   SourceStatus = "skipped"
	SourceFailed    SourceStatus = "failed"
)

// FetchedWorkbook is a raw spreadsheet delivered by a source connector.
type FetchedWorkbook struct {
	Provider   string
	ExternalID string
	Name       string
	ReceivedAt string
	Raw        []byte
}

type SourceRow struct {
	ID         int
	Provider   string
	ExternalID string
	Name       string
	ReceivedAt string
	Hash       string
	Status     SourceStatus
	RawRef     string
}

type DatasetRow struct {
	ID            string        `json:"id"`
	SourceID      *int          `json:"sourceId,omitempty"`
	Name          string        `json:"name"`
	Sheet         string        `json:"sheet,omitempty"`
	Hash          string        `json:"hash"`
	RawRef        string        `json:"-"`
	MappingRef    string        `json:"-"`
	MappingSource MappingSource `json:"mappingSource"`
	Rows          int           `json:"rows"`
	Columns       int           `json:"columns"`
	Collisions    int           `json:"collisions"`
	CreatedAt     string        `json:"createdAt"`
}
