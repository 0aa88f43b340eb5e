package httpsource

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"surveyboard/internal/apperr"
	"surveyboard/internal/config"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func response(status int, body string, header http.Header) *http.Response {
	if header == nil {
		header = make(http.Header)
	}
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     header,
	}
}

func testClient(t *testing.T, urls string, rt roundTripFunc) *Client {
	t.Helper()
	cfg, _ := config.Load()
	cfg.HTTPSourceURL = urls
	cfg.HTTPSourceToken = "test"
	cfg.HTTPSourceRateRPS = 1000

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatal(err)
	}
	client.httpClient = &http.Client{Transport: rt}
	return client
}

func TestFetchWorkbooksWithRetry(t *testing.T) {
	attempt := 0
	client := testClient(t, "https://example.test/forms/export", func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("Authorization") != "Bearer test" {
			t.Fatalf("missing auth header")
		}
		attempt++
		if attempt == 1 {
			return response(http.StatusServiceUnavailable, "busy", nil), nil
		}
		h := make(http.Header)
		h.Set("Content-Disposition", `attachment; filename="respostas.csv"`)
		return response(http.StatusOK, "respondent_id,idade\nr1,22\n", h), nil
	})

	workbooks, err := client.FetchWorkbooks(context.Background(), "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if attempt != 2 {
		t.Fatalf("attempts=%d", attempt)
	}
	if len(workbooks) != 1 {
		t.Fatalf("len=%d", len(workbooks))
	}
	wb := workbooks[0]
	if wb.Name != "respostas.csv" || wb.Provider != "http" || wb.ExternalID != "https://example.test/forms/export" {
		t.Fatalf("unexpected workbook %+v", wb)
	}
	if !strings.HasPrefix(string(wb.Raw), "respondent_id") {
		t.Fatalf("raw=%q", wb.Raw)
	}
}

func TestDownloadDoesNotRetryClientErrors(t *testing.T) {
	attempt := 0
	client := testClient(t, "https://example.test/a.xlsx", func(r *http.Request) (*http.Response, error) {
		attempt++
		return response(http.StatusNotFound, "nope", nil), nil
	})

	_, err := client.Download(context.Background(), "https://example.test/a.xlsx")
	if err == nil {
		t.Fatal("expected error")
	}
	if attempt != 1 {
		t.Fatalf("attempts=%d", attempt)
	}
	if apperr.GetCode(err) != apperr.CodeExternalService {
		t.Fatalf("code=%s", apperr.GetCode(err))
	}
}

func TestFileNameFallbacks(t *testing.T) {
	client := testClient(t, "https://example.test/x/pesquisa.xlsx,https://example.test/export", func(r *http.Request) (*http.Response, error) {
		h := make(http.Header)
		if r.URL.Path == "/export" {
			h.Set("Content-Type", "text/csv; charset=utf-8")
		}
		return response(http.StatusOK, "a", h), nil
	})

	workbooks, err := client.FetchWorkbooks(context.Background(), "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if workbooks[0].Name != "pesquisa.xlsx" || workbooks[1].Name != "download.csv" {
		t.Fatalf("names=%s,%s", workbooks[0].Name, workbooks[1].Name)
	}
}

func TestFetchWorkbooksHonoursMax(t *testing.T) {
	calls := 0
	client := testClient(t, "https://example.test/a.csv,https://example.test/b.csv", func(r *http.Request) (*http.Response, error) {
		calls++
		return response(http.StatusOK, "a", nil), nil
	})

	workbooks, err := client.FetchWorkbooks(context.Background(), "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(workbooks) != 1 || calls != 1 {
		t.Fatalf("len=%d calls=%d", len(workbooks), calls)
	}
}
