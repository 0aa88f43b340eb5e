package connectors

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/jhillyerd/enmime"

	"surveyboard/internal"
)

var workbookExtensions = map[string]struct{}{
	".xlsx": {},
	".xlsm": {},
	".csv":  {},
	".html": {},
	".htm":  {},
}

// IsWorkbookName reports whether a file name looks like a readable survey export.
func IsWorkbookName(name string) bool {
	_, ok := workbookExtensions[strings.ToLower(filepath.Ext(strings.TrimSpace(name)))]
	return ok
}

// ExtractWorkbooks pulls spreadsheet attachments out of a raw message. An HTML
// body carrying a table is returned as an extra .html workbook named after
// the subject. ExternalIDs are messageID plus the part position so each
// attachment is tracked on its own.
func ExtractWorkbooks(provider, messageID, receivedAt string, raw []byte) ([]internal.FetchedWorkbook, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	out := make([]internal.FetchedWorkbook, 0, len(env.Attachments)+1)
	for i, att := range env.Attachments {
		filename := strings.TrimSpace(att.FileName)
		if !IsWorkbookName(filename) || len(att.Content) == 0 {
			continue
		}
		out = append(out, internal.FetchedWorkbook{
			Provider:   provider,
			ExternalID: fmt.Sprintf("%s#%d", messageID, i+1),
			Name:       filename,
			ReceivedAt: receivedAt,
			Raw:        att.Content,
		})
	}

	if strings.Contains(strings.ToLower(env.HTML), "<table") {
		subject := strings.TrimSpace(env.GetHeader("Subject"))
		if subject == "" {
			subject = "message"
		}
		out = append(out, internal.FetchedWorkbook{
			Provider:   provider,
			ExternalID: messageID + "#body",
			Name:       subject + ".html",
			ReceivedAt: receivedAt,
			Raw:        []byte(env.HTML),
		})
	}

	return out, nil
}
