package sheets

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
	"surveyboard/internal/config"
)

// Connector reads a live Google Forms response sheet. It shares the OAuth
// client of the Gmail connector.
type Connector struct {
	service       *sheets.Service
	spreadsheetID string
	valueRange    string
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	for name, value := range map[string]string{
		"GMAIL_CLIENT_ID":       cfg.GmailClientID,
		"GMAIL_CLIENT_SECRET":   cfg.GmailClientSecret,
		"GMAIL_REFRESH_TOKEN":   cfg.GmailRefreshToken,
		"SHEETS_SPREADSHEET_ID": cfg.SheetsSpreadsheetID,
	} {
		if err := cfg.Require(name, value); err != nil {
			return nil, err
		}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{sheets.SpreadsheetsReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := sheets.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc, spreadsheetID: cfg.SheetsSpreadsheetID, valueRange: cfg.SheetsRange}, nil
}

// FetchWorkbooks snapshots the configured range as one CSV workbook. The
// label, when set, names the tab to read. A sheet is a single source whose
// ExternalID stays stable, so a changed snapshot replaces the previous one.
func (c *Connector) FetchWorkbooks(ctx context.Context, label string, _ int) ([]internal.FetchedWorkbook, error) {
	rng := c.valueRange
	if label != "" && label != "INBOX" {
		rng = fmt.Sprintf("'%s'!%s", label, c.valueRange)
	}

	resp, err := c.service.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, apperr.WithCode(apperr.CodeExternalService, err)
	}
	if len(resp.Values) == 0 {
		return nil, nil
	}

	raw, err := ValuesToCSV(resp.Values)
	if err != nil {
		return nil, err
	}

	return []internal.FetchedWorkbook{{
		Provider:   "sheets",
		ExternalID: c.spreadsheetID + "!" + rng,
		Name:       c.spreadsheetID + ".csv",
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}}, nil
}

// ValuesToCSV renders sheet values as UTF-8 CSV. Short rows are padded to
// the header width since the API omits trailing empty cells.
func ValuesToCSV(values [][]interface{}) ([]byte, error) {
	width := 0
	for _, row := range values {
		if len(row) > width {
			width = len(row)
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range values {
		record := make([]string, width)
		for i, cell := range row {
			if cell != nil {
				record[i] = fmt.Sprint(cell)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
