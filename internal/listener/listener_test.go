package listener

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"surveyboard/internal"
	"surveyboard/internal/config"
	"surveyboard/internal/pipeline"
	"surveyboard/internal/storage"
	"surveyboard/internal/survey"
)

type stubConnector struct {
	workbooks []internal.FetchedWorkbook
}

func (s stubConnector) FetchWorkbooks(context.Context, string, int) ([]internal.FetchedWorkbook, error) {
	return s.workbooks, nil
}

func TestRunOnce(t *testing.T) {
	tmp := t.TempDir()
	db, err := storage.Open(filepath.Join(tmp, "app.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{
		RawDir:               filepath.Join(tmp, "raw"),
		OutputDir:            filepath.Join(tmp, "out"),
		RespondentColumn:     "respondent_id",
		AgeColumn:            "idade",
		ListenerProvider:     "imap",
		ListenerFetchMax:     10,
		ListenerProcessBatch: 10,
		ListenerAutoExport:   true,
	}
	surveyCfg, err := survey.Default()
	require.NoError(t, err)
	processor := pipeline.NewProcessingService(db, cfg, nil, surveyCfg)

	conn := stubConnector{workbooks: []internal.FetchedWorkbook{
		{Provider: "imap", ExternalID: "<m1>#1", Name: "respostas.csv", ReceivedAt: "2026-02-01T00:00:00Z", Raw: []byte("respondent_id,Idade\nr1,20\n")},
		{Provider: "imap", ExternalID: "<m1>#2", Name: "notas.pdf", ReceivedAt: "2026-02-01T00:00:01Z", Raw: []byte("%PDF")},
	}}
	svc := NewService(db, cfg, processor).WithConnector(conn)

	res, err := svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Fetched: 2, Stored: 2, Processed: 1, Skipped: 1, Exported: 1}, res)

	last, err := db.GetMetadata(LastCycleKey)
	require.NoError(t, err)
	require.NotNil(t, last)

	res, err = svc.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CycleResult{Fetched: 2}, res)
}

func TestMakeConnectorRejectsUnknownProvider(t *testing.T) {
	_, err := MakeConnector(context.Background(), config.Config{}, "pop3")
	assert.Error(t, err)

	_, err = MakeConnector(context.Background(), config.Config{}, "http")
	assert.Error(t, err, "HTTP_SOURCE_URL is required")
}

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "_a_b_.csv", sanitizeName("<a b>.csv"))
}
