package pipeline

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xuri/excelize/v2"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
	"surveyboard/internal/util"
)

// Workbook is one response table read from an uploaded or fetched file.
type Workbook struct {
	Name     string
	Format   string
	Sheet    string
	Encoding string
	Table    *internal.Table
}

const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
	FormatHTML = "html"
)

var zipMagic = []byte("PK\x03\x04")

// ReadTable reads a workbook, choosing the reader by extension and falling
// back to the content's magic bytes.
func ReadTable(name string, content []byte) (Workbook, error) {
	var (
		wb  Workbook
		err error
	)
	switch DetectFormat(name, content) {
	case FormatXLSX:
		wb, err = ReadWorkbook(content)
	case FormatHTML:
		wb, err = ReadHTMLTable(content)
	case FormatCSV:
		wb, err = ReadCSV(content)
	default:
		return Workbook{}, apperr.Newf(apperr.CodeInvalidInput, "unsupported file type: %s", name)
	}
	if err != nil {
		return Workbook{}, apperr.Wrapf(err, "read %s", name)
	}
	wb.Name = name
	return wb, nil
}

func DetectFormat(name string, content []byte) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX
	case ".html", ".htm":
		return FormatHTML
	case ".csv", ".txt":
		return FormatCSV
	case "", ".bin":
	default:
		return ""
	}
	if bytes.HasPrefix(content, zipMagic) {
		return FormatXLSX
	}
	head := content
	if len(head) > 4096 {
		head = head[:4096]
	}
	if bytes.Contains(bytes.ToLower(head), []byte("<table")) || bytes.Contains(bytes.ToLower(head), []byte("<html")) {
		return FormatHTML
	}
	return FormatCSV
}

// ReadWorkbook opens an xlsx and reads the sheet that looks most like a
// response table.
func ReadWorkbook(content []byte) (Workbook, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return Workbook{}, apperr.WithCode(apperr.CodeInvalidInput, err)
	}
	defer f.Close()

	var (
		best      SheetScore
		bestRows  [][]string
		bestFound bool
	)
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			internal.DefaultLogger.Warn("read: sheet %s unreadable: %v", sheet, err)
			continue
		}
		score := DetectSurveySheet(sheet, rows)
		internal.DefaultLogger.Trace("read: sheet %s score=%.2f reason=%s", sheet, score.Score, score.Reason)
		if !bestFound || score.Score > best.Score {
			best, bestRows, bestFound = score, rows, true
		}
	}
	if !bestFound {
		return Workbook{}, apperr.New(apperr.CodeInvalidInput, "workbook has no readable sheet")
	}

	t, err := buildTable(bestRows)
	if err != nil {
		return Workbook{}, err
	}
	return Workbook{Format: FormatXLSX, Sheet: best.Sheet, Table: t}, nil
}

// ReadCSV decodes UTF-8 (BOM tolerated) or Latin-1 text and sniffs the
// delimiter from the header line.
func ReadCSV(content []byte) (Workbook, error) {
	text, encoding := util.DecodeAny(content)

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Workbook{}, apperr.WithCode(apperr.CodeInvalidInput, err)
		}
		rows = append(rows, record)
	}

	t, err := buildTable(rows)
	if err != nil {
		return Workbook{}, err
	}
	return Workbook{Format: FormatCSV, Encoding: encoding, Table: t}, nil
}

// ReadHTMLTable reads the largest <table> of an HTML export or mail body.
func ReadHTMLTable(content []byte) (Workbook, error) {
	text, encoding := util.DecodeAny(content)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return Workbook{}, apperr.WithCode(apperr.CodeInvalidInput, err)
	}

	var best [][]string
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		rows := [][]string{}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			cells := []string{}
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(cell.Text()))
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		if len(rows) > len(best) {
			best = rows
		}
	})
	if len(best) == 0 {
		return Workbook{}, apperr.New(apperr.CodeInvalidInput, "no table found in html")
	}

	t, err := buildTable(best)
	if err != nil {
		return Workbook{}, err
	}
	return Workbook{Format: FormatHTML, Encoding: encoding, Table: t}, nil
}

func sniffDelimiter(text string) rune {
	line := text
	if i := strings.IndexAny(line, "\r\n"); i >= 0 {
		line = line[:i]
	}
	best, bestCount := ',', 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := countOutsideQuotes(line, d); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func countOutsideQuotes(line string, d rune) int {
	n, quoted := 0, false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

// buildTable turns raw rows into a table: the header row is located, empty
// headers become unnamed_N, cells are trimmed and fully empty rows dropped.
// Header text is kept as is; renaming belongs to the column normalizer.
func buildTable(rows [][]string) (*internal.Table, error) {
	h := findHeaderRow(rows)
	if h < 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "table has no header row")
	}

	width := 0
	for _, row := range rows[h:] {
		if n := lastFilled(row) + 1; n > width {
			width = n
		}
	}

	header := make([]string, width)
	for i := range header {
		if i < len(rows[h]) {
			header[i] = strings.TrimSpace(rows[h][i])
		}
		if header[i] == "" {
			header[i] = fmt.Sprintf("unnamed_%d", i+1)
		}
	}

	data := make([][]string, 0, len(rows)-h-1)
	for _, row := range rows[h+1:] {
		if lastFilled(row) < 0 {
			continue
		}
		cells := make([]string, width)
		for i := 0; i < width && i < len(row); i++ {
			cells[i] = strings.TrimSpace(row[i])
		}
		data = append(data, cells)
	}

	return internal.NewTable(header, data), nil
}

// findHeaderRow picks the first of the leading rows that is at least half as
// wide as the widest leading row. Title rows above the header are skipped.
func findHeaderRow(rows [][]string) int {
	const probe = 10
	limit := len(rows)
	if limit > probe {
		limit = probe
	}

	widest := 0
	for _, row := range rows[:limit] {
		if n := filledCount(row); n > widest {
			widest = n
		}
	}
	if widest == 0 {
		return -1
	}
	for i, row := range rows[:limit] {
		if filledCount(row)*2 >= widest {
			return i
		}
	}
	return -1
}

func filledCount(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func lastFilled(row []string) int {
	for i := len(row) - 1; i >= 0; i-- {
		if strings.TrimSpace(row[i]) != "" {
			return i
		}
	}
	return -1
}
