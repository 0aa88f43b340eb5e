package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"surveyboard/internal"
	"surveyboard/internal/storage"
)

type WorkbookStoreService struct {
	db     *storage.DB
	rawDir string
}

func NewWorkbookStoreService(db *storage.DB, rawDir string) *WorkbookStoreService {
	return &WorkbookStoreService{db: db, rawDir: rawDir}
}

// Store writes the workbook bytes once under their content hash and records
// the source as fetched.
func (s *WorkbookStoreService) Store(wb internal.FetchedWorkbook) (internal.SourceRow, error) {
	hash := hashOf(wb.Raw)

	if err := os.MkdirAll(s.rawDir, 0o755); err != nil {
		return internal.SourceRow{}, err
	}

	ext := strings.ToLower(filepath.Ext(wb.Name))
	if ext == "" {
		ext = ".bin"
	}
	rawPath := filepath.Join(s.rawDir, hash+ext)
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, wb.Raw, 0o644); err != nil {
			return internal.SourceRow{}, err
		}
	}

	return s.db.UpsertSource(wb.Provider, wb.ExternalID, wb.Name, wb.ReceivedAt, hash, rawPath, internal.SourceFetched)
}

func hashOf(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
