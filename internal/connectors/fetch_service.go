package connectors

import (
	"context"

	"surveyboard/internal"
	"surveyboard/internal/storage"
)

type FetchService struct {
	db        *storage.DB
	connector WorkbookConnector
	store     *WorkbookStoreService
}

type FetchResult struct {
	Fetched int
	Stored  int
	Known   int
}

func NewFetchService(db *storage.DB, rawDir string, connector WorkbookConnector) *FetchService {
	return &FetchService{
		db:        db,
		connector: connector,
		store:     NewWorkbookStoreService(db, rawDir),
	}
}

// FetchAndStore pulls up to max workbooks and stores the ones not seen
// before. A workbook already tracked with the same content is counted as known.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	workbooks, err := s.connector.FetchWorkbooks(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	res := FetchResult{Fetched: len(workbooks)}
	for _, wb := range workbooks {
		existing, err := s.db.GetSourceByExternalID(wb.Provider, wb.ExternalID)
		if err != nil {
			return res, err
		}
		if existing != nil && existing.Hash == hashOf(wb.Raw) {
			res.Known++
			continue
		}
		row, err := s.store.Store(wb)
		if err != nil {
			return res, err
		}
		internal.DefaultLogger.Debug("fetch: stored %s %s as source %d", wb.Provider, wb.Name, row.ID)
		res.Stored++
	}

	return res, nil
}
