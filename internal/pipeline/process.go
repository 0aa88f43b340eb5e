package pipeline

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
	"surveyboard/internal/cache"
	"surveyboard/internal/columns"
	"surveyboard/internal/config"
	"surveyboard/internal/storage"
	"surveyboard/internal/survey"
)

type ProcessingService struct {
	db     *storage.DB
	cfg    config.Config
	cache  *cache.TableCache
	survey *survey.Config
}

func NewProcessingService(db *storage.DB, cfg config.Config, tables *cache.TableCache, surveyCfg *survey.Config) *ProcessingService {
	if tables == nil {
		tables = cache.New(cfg.CacheMaxEntries)
	}
	return &ProcessingService{db: db, cfg: cfg, cache: tables, survey: surveyCfg}
}

func (s *ProcessingService) Survey() *survey.Config {
	return s.survey
}

func (s *ProcessingService) Cache() *cache.TableCache {
	return s.cache
}

// RoleColumns returns the respondent and age columns of a cached table,
// resolved the same way the report resolves them.
func (s *ProcessingService) RoleColumns(entry *cache.Entry) (respondent, age string) {
	resolver := survey.NewResolver(s.survey, entry.Table.Columns, entry.Mapping.Len() == 0)
	respondent = roleColumn(entry.Table, resolver, s.cfg.RespondentColumn, "respondent")
	age = roleColumn(entry.Table, resolver, s.cfg.AgeColumn, "age")
	return respondent, age
}

// Upload is one workbook handed to Ingest, with an optional mapping table.
type Upload struct {
	Name     string
	Content  []byte
	Mapping  []byte
	SourceID *int
}

type IngestResult struct {
	Dataset internal.DatasetRow
	Entry   *cache.Entry
	Cached  bool
	TraceID string
}

// Ingest reads, renames and registers a workbook as a new dataset. The raw
// bytes and an uploaded mapping are kept on disk so the dataset can be
// rebuilt after the cache drops it.
func (s *ProcessingService) Ingest(up Upload) (IngestResult, error) {
	start := time.Now()
	trace := uuid.NewString()
	if len(up.Content) == 0 {
		return IngestResult{}, apperr.New(apperr.CodeInvalidInput, "empty workbook")
	}

	hash, rawRef, err := storeRaw(s.cfg.RawDir, up.Name, up.Content)
	if err != nil {
		return IngestResult{}, err
	}

	var upload io.Reader
	if len(up.Mapping) > 0 {
		upload = bytes.NewReader(up.Mapping)
	}
	m, source := columns.ResolveMapping(upload, s.cfg.MappingPath)

	mappingRef := ""
	switch source {
	case internal.MappingUpload:
		_, mappingRef, err = storeRaw(s.cfg.RawDir, "mapping.csv", up.Mapping)
		if err != nil {
			return IngestResult{}, err
		}
	case internal.MappingLocal:
		mappingRef = s.cfg.MappingPath
	}

	entry, hit, err := s.cache.GetOrLoad(cache.Key(up.Content, m), func() (*cache.Entry, error) {
		return s.load(up.Name, up.Content, m)
	})
	if err != nil {
		return IngestResult{}, err
	}
	readMs := float64(time.Since(start).Milliseconds())

	row := internal.DatasetRow{
		ID:            uuid.NewString(),
		SourceID:      up.SourceID,
		Name:          up.Name,
		Sheet:         entry.Sheet,
		Hash:          hash,
		RawRef:        rawRef,
		MappingRef:    mappingRef,
		MappingSource: source,
		Rows:          entry.Table.Len(),
		Columns:       len(entry.Table.Columns),
		Collisions:    len(entry.Report.Collisions),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if err := s.db.InsertDataset(row, entry.Report, entry.Dictionary); err != nil {
		return IngestResult{}, err
	}

	sourceID := 0
	if up.SourceID != nil {
		sourceID = *up.SourceID
	}
	if err := s.db.InsertRun(trace, row.ID, sourceID,
		map[string]float64{"readMs": readMs, "totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{"rows": row.Rows, "columns": row.Columns, "renamed": entry.Report.Renamed, "collisions": row.Collisions}); err != nil {
		internal.DefaultLogger.Warn("ingest %s: record run %s: %v", up.Name, trace, err)
	}

	internal.DefaultLogger.Info("ingest %s: dataset=%s rows=%d columns=%d mapping=%s cached=%t", up.Name, row.ID, row.Rows, row.Columns, source, hit)
	return IngestResult{Dataset: row, Entry: entry, Cached: hit, TraceID: trace}, nil
}

func (s *ProcessingService) load(name string, content []byte, m *columns.Mapping) (*cache.Entry, error) {
	wb, err := ReadTable(name, content)
	if err != nil {
		return nil, err
	}
	renamed, report := columns.Apply(wb.Table, m, s.cfg.RespondentColumn)
	return &cache.Entry{
		Name:       name,
		Sheet:      wb.Sheet,
		Original:   wb.Table,
		Table:      renamed,
		Mapping:    m,
		Report:     report,
		Dictionary: columns.Dictionary(wb.Table, renamed, m),
	}, nil
}

// Dataset returns the stored dataset and its renamed table, rebuilding it
// from disk on a cache miss.
func (s *ProcessingService) Dataset(id string) (internal.DatasetRow, *cache.Entry, error) {
	row, err := s.db.MustDataset(id)
	if err != nil {
		return internal.DatasetRow{}, nil, err
	}

	content, err := os.ReadFile(row.RawRef)
	if err != nil {
		return row, nil, apperr.Wrapf(err, "dataset %s: raw workbook unavailable", id)
	}

	var m *columns.Mapping
	if row.MappingRef != "" {
		m, err = columns.LoadMappingFile(row.MappingRef)
		if err != nil {
			return row, nil, apperr.Wrapf(err, "dataset %s: mapping unavailable", id)
		}
		m.Source = row.MappingSource
	}

	entry, _, err := s.cache.GetOrLoad(cache.Key(content, m), func() (*cache.Entry, error) {
		return s.load(row.Name, content, m)
	})
	if err != nil {
		return row, nil, err
	}
	return row, entry, nil
}

// Report builds the dashboard sections of a dataset.
func (s *ProcessingService) Report(id string) (Report, error) {
	row, entry, err := s.Dataset(id)
	if err != nil {
		return Report{}, err
	}
	return s.ReportFor(row.Name, entry), nil
}

func (s *ProcessingService) ReportFor(name string, entry *cache.Entry) Report {
	return BuildReport(entry.Table, s.survey, ReportOptions{
		Name:             name,
		RespondentColumn: s.cfg.RespondentColumn,
		AgeColumn:        s.cfg.AgeColumn,
		AllowKeywords:    entry.Mapping.Len() == 0,
		Mapping:          entry.Mapping,
	})
}

type ExportPaths struct {
	CSV    string
	Report string
}

// ExportDataset writes the renamed CSV and the report workbook to dir and
// marks the dataset's source exported.
func (s *ProcessingService) ExportDataset(id, dir string) (ExportPaths, error) {
	row, entry, err := s.Dataset(id)
	if err != nil {
		return ExportPaths{}, err
	}

	base := exportBaseName(row)
	paths := ExportPaths{
		CSV:    filepath.Join(dir, base+".csv"),
		Report: filepath.Join(dir, base+"_relatorio.xlsx"),
	}
	if err := ExportTableCSV(entry.Table, paths.CSV); err != nil {
		return ExportPaths{}, err
	}
	if err := ExportReportXLSX(s.ReportFor(row.Name, entry), paths.Report); err != nil {
		return ExportPaths{}, err
	}

	if row.SourceID != nil {
		if err := s.db.UpdateSourceStatus(*row.SourceID, internal.SourceExported); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

type ProcessResult struct {
	SourceID  int
	DatasetID string
	Status    internal.SourceStatus
}

// ProcessSource turns a fetched source into a dataset. Files that are not
// readable tables are marked skipped rather than failing the batch.
func (s *ProcessingService) ProcessSource(src internal.SourceRow) (ProcessResult, error) {
	res := ProcessResult{SourceID: src.ID}
	content, err := os.ReadFile(src.RawRef)
	if err != nil {
		_ = s.db.UpdateSourceStatus(src.ID, internal.SourceFailed)
		res.Status = internal.SourceFailed
		return res, err
	}

	id := src.ID
	ingested, err := s.Ingest(Upload{Name: src.Name, Content: content, SourceID: &id})
	if err != nil {
		if errors.Is(err, apperr.ErrInvalidInput) {
			internal.DefaultLogger.Warn("process: source %d (%s) skipped: %v", src.ID, src.Name, err)
			res.Status = internal.SourceSkipped
			return res, s.db.UpdateSourceStatus(src.ID, internal.SourceSkipped)
		}
		_ = s.db.UpdateSourceStatus(src.ID, internal.SourceFailed)
		res.Status = internal.SourceFailed
		return res, err
	}

	res.DatasetID = ingested.Dataset.ID
	res.Status = internal.SourceProcessed
	return res, s.db.UpdateSourceStatus(src.ID, internal.SourceProcessed)
}

// ProcessPending processes fetched sources oldest first. provider filters
// when non-empty. A failing source is logged and the batch continues.
func (s *ProcessingService) ProcessPending(limit int, provider string) ([]ProcessResult, error) {
	pending, err := s.db.ListSourcesByStatus(internal.SourceFetched, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ProcessResult, 0, len(pending))
	for _, src := range pending {
		if provider != "" && src.Provider != provider {
			continue
		}
		res, err := s.ProcessSource(src)
		if err != nil {
			internal.DefaultLogger.Error("process: source %d (%s) failed: %v", src.ID, src.Name, err)
		}
		out = append(out, res)
	}
	return out, nil
}

// storeRaw writes content once under its SHA-256 and returns hash and path.
func storeRaw(dir, name string, content []byte) (string, string, error) {
	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}

	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	path := filepath.Join(dir, hash+ext)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return "", "", err
		}
	}
	return hash, path, nil
}

func exportBaseName(row internal.DatasetRow) string {
	stem := strings.TrimSuffix(filepath.Base(row.Name), filepath.Ext(row.Name))
	stem = columns.Slugify(stem)
	if stem == "" {
		stem = "dataset"
	}
	short := row.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s", stem, short)
}
