package httpsource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
	"surveyboard/internal/config"
)

const maxAttempts = 5

// Client downloads survey exports published at fixed URLs, e.g. a form
// tool's "download responses" link.
type Client struct {
	urls       []string
	token      string
	maxBytes   int64
	httpClient *http.Client
	limiter    *RateLimiter
}

func NewClient(cfg config.Config) (*Client, error) {
	if err := cfg.Require("HTTP_SOURCE_URL", cfg.HTTPSourceURL); err != nil {
		return nil, err
	}

	urls := make([]string, 0)
	for _, raw := range strings.Split(cfg.HTTPSourceURL, ",") {
		if raw = strings.TrimSpace(raw); raw != "" {
			urls = append(urls, raw)
		}
	}

	return &Client{
		urls:       urls,
		token:      cfg.HTTPSourceToken,
		maxBytes:   cfg.MaxUploadBytes(),
		httpClient: &http.Client{Timeout: time.Duration(cfg.HTTPSourceTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.HTTPSourceRateRPS),
	}, nil
}

// FetchWorkbooks downloads every configured URL. The URL is the source's
// ExternalID; label is ignored.
func (c *Client) FetchWorkbooks(ctx context.Context, _ string, max int) ([]internal.FetchedWorkbook, error) {
	out := make([]internal.FetchedWorkbook, 0, len(c.urls))
	for _, rawURL := range c.urls {
		if max > 0 && len(out) >= max {
			break
		}
		wb, err := c.Download(ctx, rawURL)
		if err != nil {
			return out, err
		}
		out = append(out, wb)
	}
	return out, nil
}

// Download fetches one workbook, retrying transport errors and 429/5xx with
// exponential backoff.
func (c *Client) Download(ctx context.Context, rawURL string) (internal.FetchedWorkbook, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return internal.FetchedWorkbook{}, apperr.WithCode(apperr.CodeInvalidInput, err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.WaitTurn(ctx); err != nil {
			return internal.FetchedWorkbook{}, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return internal.FetchedWorkbook{}, err
		}
		if strings.TrimSpace(c.token) != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return internal.FetchedWorkbook{}, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(io.LimitReader(resp.Body, c.limit()+1))
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			lastErr = fmt.Errorf("source status %d", resp.StatusCode)
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				internal.DefaultLogger.Debug("httpsource: %s returned %d, retry in %s", u.Redacted(), resp.StatusCode, backoff)
				if err := sleepCtx(ctx, backoff); err != nil {
					return internal.FetchedWorkbook{}, err
				}
				continue
			}
			return internal.FetchedWorkbook{}, apperr.Newf(apperr.CodeExternalService, "source error: url=%s status=%d", u.Redacted(), resp.StatusCode)
		}
		if int64(len(body)) > c.limit() {
			return internal.FetchedWorkbook{}, apperr.Newf(apperr.CodeInvalidInput, "source %s exceeds %d bytes", u.Redacted(), c.limit())
		}

		return internal.FetchedWorkbook{
			Provider:   "http",
			ExternalID: rawURL,
			Name:       fileName(u, resp.Header),
			ReceivedAt: time.Now().UTC().Format(time.RFC3339),
			Raw:        body,
		}, nil
	}

	if lastErr == nil {
		lastErr = errors.New("source request failed")
	}
	return internal.FetchedWorkbook{}, apperr.WithCode(apperr.CodeExternalService, lastErr)
}

func (c *Client) limit() int64 {
	if c.maxBytes <= 0 {
		return 50 << 20
	}
	return c.maxBytes
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// fileName prefers the Content-Disposition filename, then the last path
// segment, then a name derived from the content type.
func fileName(u *url.URL, header http.Header) string {
	if _, params, err := mime.ParseMediaType(header.Get("Content-Disposition")); err == nil {
		if name := strings.TrimSpace(params["filename"]); name != "" {
			return path.Base(name)
		}
	}
	if base := path.Base(u.Path); base != "" && base != "/" && base != "." && path.Ext(base) != "" {
		return base
	}

	ct, _, _ := mime.ParseMediaType(header.Get("Content-Type"))
	switch {
	case strings.Contains(ct, "spreadsheetml"):
		return "download.xlsx"
	case strings.Contains(ct, "csv"):
		return "download.csv"
	case strings.Contains(ct, "html"):
		return "download.html"
	}
	return "download.bin"
}
