package connectors

import (
	"context"

	"surveyboard/internal"
)

// WorkbookConnector delivers raw survey workbooks from one source. label is
// the provider's folder or label; providers without folders ignore it.
type WorkbookConnector interface {
	FetchWorkbooks(ctx context.Context, label string, max int) ([]internal.FetchedWorkbook, error)
}
