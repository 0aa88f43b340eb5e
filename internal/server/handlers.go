package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"surveyboard/internal"
	"surveyboard/internal/aggregate"
	"surveyboard/internal/apperr"
	"surveyboard/internal/cache"
	"surveyboard/internal/columns"
	"surveyboard/internal/listener"
	"surveyboard/internal/pipeline"
)

const (
	defaultListLimit = 50
	xlsxContentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":       "ok",
		"cacheEntries": s.processor.Cache().Len(),
	}
	lastCycle, err := s.db.GetMetadata(listener.LastCycleKey)
	if err != nil {
		internal.DefaultLogger.Warn("http: read listener heartbeat: %v", err)
	}
	if lastCycle != nil {
		body["listenerLastCycle"] = *lastCycle
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSurveyConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.processor.Survey())
}

func (s *Server) handlePurgeCache(w http.ResponseWriter, r *http.Request) {
	n := s.processor.Cache().Len()
	s.processor.Cache().Purge()
	internal.DefaultLogger.Info("http: purged %d cached tables", n)
	writeJSON(w, http.StatusOK, map[string]int{"purged": n})
}

type sourceInfo struct {
	Provider   string                `json:"provider"`
	ExternalID string                `json:"externalId"`
	Name       string                `json:"name"`
	ReceivedAt string                `json:"receivedAt"`
	Status     internal.SourceStatus `json:"status"`
}

type datasetResponse struct {
	Dataset    internal.DatasetRow     `json:"dataset"`
	Source     *sourceInfo             `json:"source,omitempty"`
	Sheet      string                  `json:"sheet,omitempty"`
	Cached     bool                    `json:"cached"`
	TraceID    string                  `json:"traceId,omitempty"`
	Apply      columns.ApplyReport     `json:"apply"`
	Dictionary []internal.MappingEntry `json:"dictionary"`
}

// handleUpload accepts a multipart form with a workbook in "file" and an
// optional mapping table in "mapping".
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	limit := s.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error:   apperr.CodeInvalidInput,
				Message: fmt.Sprintf("upload exceeds %d bytes", limit),
			})
			return
		}
		writeError(w, apperr.Wrap(apperr.WithCode(apperr.CodeInvalidInput, err), "parse upload"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	content, name, err := formFile(r, "file")
	if err != nil {
		writeError(w, err)
		return
	}
	if content == nil {
		writeError(w, apperr.New(apperr.CodeInvalidInput, "missing form file \"file\""))
		return
	}
	mapping, _, err := formFile(r, "mapping")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.processor.Ingest(pipeline.Upload{Name: name, Content: content, Mapping: mapping})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, datasetResponse{
		Dataset:    res.Dataset,
		Sheet:      res.Entry.Sheet,
		Cached:     res.Cached,
		TraceID:    res.TraceID,
		Apply:      res.Entry.Report,
		Dictionary: res.Entry.Dictionary,
	})
}

// formFile returns nil content when the field is absent.
func formFile(r *http.Request, field string) ([]byte, string, error) {
	f, hdr, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", apperr.Wrapf(apperr.WithCode(apperr.CodeInvalidInput, err), "form file %s", field)
	}
	defer f.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		return nil, "", apperr.Wrapf(apperr.WithCode(apperr.CodeInvalidInput, err), "read form file %s", field)
	}
	return buf.Bytes(), hdr.Filename, nil
}

func (s *Server) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := s.db.ListDatasets(limit)
	if err != nil {
		writeError(w, apperr.WithCode(apperr.CodeDatabaseError, err))
		return
	}
	if rows == nil {
		rows = []internal.DatasetRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleGetDataset(w http.ResponseWriter, r *http.Request) {
	row, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	resp := datasetResponse{
		Dataset:    row,
		Sheet:      entry.Sheet,
		Apply:      entry.Report,
		Dictionary: entry.Dictionary,
	}
	if row.SourceID != nil {
		src, err := s.db.GetSourceByID(*row.SourceID)
		if err != nil {
			writeError(w, apperr.WithCode(apperr.CodeDatabaseError, err))
			return
		}
		if src != nil {
			resp.Source = &sourceInfo{
				Provider:   src.Provider,
				ExternalID: src.ExternalID,
				Name:       src.Name,
				ReceivedAt: src.ReceivedAt,
				Status:     src.Status,
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleDictionary returns the dictionary stored when the dataset was
// ingested, without rebuilding the table.
func (s *Server) handleDictionary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.db.MustDataset(id); err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.db.MappingEntries(id)
	if err != nil {
		writeError(w, apperr.WithCode(apperr.CodeDatabaseError, err))
		return
	}
	if entries == nil {
		entries = []internal.MappingEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	_, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	respondent, age := s.processor.RoleColumns(entry)
	writeJSON(w, http.StatusOK, aggregate.Summarize(entry.Table, respondent, age))
}

func (s *Server) handleColumns(w http.ResponseWriter, r *http.Request) {
	_, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	respondent, age := s.processor.RoleColumns(entry)
	writeJSON(w, http.StatusOK, map[string]any{
		"columns":    entry.Table.Columns,
		"dictionary": entry.Dictionary,
		"respondent": respondent,
		"age":        age,
	})
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	_, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	column, err := requiredParam(r, "column")
	if err != nil {
		writeError(w, err)
		return
	}
	basis, err := aggregate.ParseBasis(r.URL.Query().Get("basis"))
	if err != nil {
		writeError(w, err)
		return
	}

	respondent, _ := s.processor.RoleColumns(entry)
	res, err := aggregate.Count(entry.Table, column, respondent, basis)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	_, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	column, err := requiredParam(r, "column")
	if err != nil {
		writeError(w, err)
		return
	}
	respondent, _ := s.processor.RoleColumns(entry)
	res, err := aggregate.CompareBases(entry.Table, column, respondent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleAges(w http.ResponseWriter, r *http.Request) {
	_, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	respondent, age := s.processor.RoleColumns(entry)
	if column := r.URL.Query().Get("column"); column != "" {
		age = column
	}
	res, err := aggregate.AgeBuckets(entry.Table, age, respondent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleLikert returns the charts of one report section, each with its own
// notice when the questions are absent.
func (s *Server) handleLikert(w http.ResponseWriter, r *http.Request) {
	row, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	id, err := requiredParam(r, "section")
	if err != nil {
		writeError(w, err)
		return
	}
	section, found := s.processor.ReportFor(row.Name, entry).Section(id)
	if !found {
		writeError(w, apperr.Newf(apperr.CodeNotFound, "section not found: %s", id))
		return
	}
	writeJSON(w, http.StatusOK, section)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	_, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	column, err := requiredParam(r, "column")
	if err != nil {
		writeError(w, err)
		return
	}
	sep := r.URL.Query().Get("sep")
	if sep == "" {
		sep = ","
	}
	top, err := intParam(r, "top", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	respondent, _ := s.processor.RoleColumns(entry)
	res, err := aggregate.CountSplit(entry.Table, column, sep, respondent, top)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReportHTML(w http.ResponseWriter, r *http.Request) {
	row, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pipeline.RenderReportHTML(s.processor.ReportFor(row.Name, entry)))
}

func (s *Server) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	row, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.processor.ReportFor(row.Name, entry))
}

func (s *Server) handleReportXLSX(w http.ResponseWriter, r *http.Request) {
	row, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := pipeline.WriteReportXLSX(&buf, s.processor.ReportFor(row.Name, entry)); err != nil {
		writeError(w, err)
		return
	}
	writeAttachment(w, xlsxContentType, row.ID+"_relatorio.xlsx", buf.Bytes())
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	row, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := pipeline.WriteTableCSV(&buf, entry.Table); err != nil {
		writeError(w, err)
		return
	}
	writeAttachment(w, "text/csv; charset=utf-8", row.ID+".csv", buf.Bytes())
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	row, entry, ok := s.loadDataset(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := pipeline.WriteTableXLSX(&buf, entry.Table); err != nil {
		writeError(w, err)
		return
	}
	writeAttachment(w, xlsxContentType, row.ID+".xlsx", buf.Bytes())
}

func (s *Server) loadDataset(w http.ResponseWriter, r *http.Request) (internal.DatasetRow, *cache.Entry, bool) {
	row, entry, err := s.processor.Dataset(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return row, nil, false
	}
	return row, entry, true
}

func writeAttachment(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func requiredParam(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", apperr.Newf(apperr.CodeInvalidInput, "missing query parameter %q", name)
	}
	return v, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperr.Newf(apperr.CodeInvalidInput, "invalid %s: %q", name, raw)
	}
	return n, nil
}
