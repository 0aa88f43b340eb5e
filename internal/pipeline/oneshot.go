package pipeline

import (
	"os"
	"path/filepath"

	"surveyboard/internal"
	"surveyboard/internal/columns"
	"surveyboard/internal/survey"
)

type OneShotOptions struct {
	MappingPath      string
	RespondentColumn string
	AgeColumn        string
	Survey           *survey.Config
}

type OneShotResult struct {
	Workbook      Workbook
	Table         *internal.Table
	Mapping       *columns.Mapping
	MappingSource internal.MappingSource
	Apply         columns.ApplyReport
	Dictionary    []internal.MappingEntry
	Report        Report
}

// RunOneShot reads a workbook from disk, renames its columns and computes the
// report without touching storage.
func RunOneShot(path string, opts OneShotOptions) (OneShotResult, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return OneShotResult{}, err
	}
	wb, err := ReadTable(filepath.Base(path), blob)
	if err != nil {
		return OneShotResult{}, err
	}

	m, source := columns.ResolveMapping(nil, opts.MappingPath)
	renamed, applied := columns.Apply(wb.Table, m, opts.RespondentColumn)

	res := OneShotResult{
		Workbook:      wb,
		Table:         renamed,
		Mapping:       m,
		MappingSource: source,
		Apply:         applied,
		Dictionary:    columns.Dictionary(wb.Table, renamed, m),
	}
	if opts.Survey != nil {
		res.Report = BuildReport(renamed, opts.Survey, ReportOptions{
			Name:             wb.Name,
			RespondentColumn: opts.RespondentColumn,
			AgeColumn:        opts.AgeColumn,
			AllowKeywords:    m.Len() == 0,
			Mapping:          m,
		})
	}
	return res, nil
}
