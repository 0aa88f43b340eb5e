package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"surveyboard/internal"
	"surveyboard/internal/config"
	"surveyboard/internal/connectors"
	gmailconnector "surveyboard/internal/connectors/gmail"
	"surveyboard/internal/connectors/httpsource"
	imapconnector "surveyboard/internal/connectors/imap"
	sheetsconnector "surveyboard/internal/connectors/sheets"
	"surveyboard/internal/pipeline"
	"surveyboard/internal/storage"
)

// LastCycleKey is the metadata key holding the time of the last finished cycle.
const LastCycleKey = "listener.lastCycle"

type Service struct {
	db        *storage.DB
	cfg       config.Config
	processor *pipeline.ProcessingService
	connector connectors.WorkbookConnector
}

func NewService(db *storage.DB, cfg config.Config, processor *pipeline.ProcessingService) *Service {
	return &Service{db: db, cfg: cfg, processor: processor}
}

// WithConnector fixes the connector instead of building one from config.
func (s *Service) WithConnector(c connectors.WorkbookConnector) *Service {
	s.connector = c
	return s
}

type CycleResult struct {
	Fetched   int
	Stored    int
	Processed int
	Skipped   int
	Failed    int
	Exported  int
}

// Run polls until ctx is done. A failed cycle is logged and retried on the
// next tick.
func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.ListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			internal.DefaultLogger.Error("listener cycle error: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunOnce fetches new workbooks, processes pending sources and, when
// enabled, exports what was processed.
func (s *Service) RunOnce(ctx context.Context) (CycleResult, error) {
	provider := s.provider()
	conn := s.connector
	if conn == nil {
		var err error
		conn, err = MakeConnector(ctx, s.cfg, provider)
		if err != nil {
			return CycleResult{}, err
		}
	}

	fetchService := connectors.NewFetchService(s.db, s.cfg.RawDir, conn)
	fetched, err := fetchService.FetchAndStore(ctx, s.cfg.ListenerLabel, s.cfg.ListenerFetchMax)
	if err != nil {
		return CycleResult{}, err
	}
	res := CycleResult{Fetched: fetched.Fetched, Stored: fetched.Stored}

	processed, err := s.processor.ProcessPending(s.cfg.ListenerProcessBatch, provider)
	if err != nil {
		return res, err
	}
	for _, p := range processed {
		switch p.Status {
		case internal.SourceProcessed:
			res.Processed++
		case internal.SourceSkipped:
			res.Skipped++
		default:
			res.Failed++
		}
	}

	if s.cfg.ListenerAutoExport {
		n, err := s.exportProcessed(provider)
		res.Exported = n
		if err != nil {
			return res, err
		}
	}

	if err := s.db.SetMetadata(LastCycleKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
		internal.DefaultLogger.Warn("listener: record cycle time: %v", err)
	}
	internal.DefaultLogger.Info("listener cycle done provider=%s fetched=%d stored=%d processed=%d skipped=%d failed=%d exported=%d",
		provider, res.Fetched, res.Stored, res.Processed, res.Skipped, res.Failed, res.Exported)
	return res, nil
}

func (s *Service) provider() string {
	return strings.ToLower(strings.TrimSpace(s.cfg.ListenerProvider))
}

// exportProcessed writes the latest dataset of every processed source.
func (s *Service) exportProcessed(provider string) (int, error) {
	sources, err := s.db.ListSourcesByStatus(internal.SourceProcessed, 200)
	if err != nil {
		return 0, err
	}

	exported := 0
	dir := filepath.Join(s.cfg.OutputDir, "listener")
	for _, src := range sources {
		if provider != "" && src.Provider != provider {
			continue
		}
		datasets, err := s.db.DatasetsForSource(src.ID)
		if err != nil {
			return exported, err
		}
		if len(datasets) == 0 {
			continue
		}
		latest := datasets[len(datasets)-1]
		paths, err := s.processor.ExportDataset(latest.ID, dir)
		if err != nil {
			return exported, err
		}
		internal.DefaultLogger.Debug("listener: exported source %d (%s) to %s", src.ID, sanitizeName(src.Name), paths.CSV)
		exported++
	}
	return exported, nil
}

// MakeConnector builds the workbook connector for a provider name.
func MakeConnector(ctx context.Context, cfg config.Config, provider string) (connectors.WorkbookConnector, error) {
	switch provider {
	case "gmail":
		return gmailconnector.NewConnector(ctx, cfg)
	case "imap":
		return imapconnector.NewConnector(cfg)
	case "sheets":
		return sheetsconnector.NewConnector(ctx, cfg)
	case "http":
		return httpsource.NewClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}

func sanitizeName(input string) string {
	repl := strings.NewReplacer("<", "_", ">", "_", ":", "_", "/", "_", "\\", "_", "|", "_", "?", "_", "*", "_", " ", "_")
	out := repl.Replace(input)
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
