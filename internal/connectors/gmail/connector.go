package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"surveyboard/internal"
	"surveyboard/internal/apperr"
	"surveyboard/internal/config"
	"surveyboard/internal/connectors"
)

type Connector struct {
	service *gmail.Service
}

func NewConnector(ctx context.Context, cfg config.Config) (*Connector, error) {
	if err := cfg.Require("GMAIL_CLIENT_ID", cfg.GmailClientID); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_CLIENT_SECRET", cfg.GmailClientSecret); err != nil {
		return nil, err
	}
	if err := cfg.Require("GMAIL_REFRESH_TOKEN", cfg.GmailRefreshToken); err != nil {
		return nil, err
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.GmailClientID,
		ClientSecret: cfg.GmailClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.GmailRedirectURI,
		Scopes:       []string{gmail.GmailReadonlyScope},
	}

	tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GmailRefreshToken})
	svc, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, err
	}

	return &Connector{service: svc}, nil
}

// FetchWorkbooks lists the newest messages under label that carry
// attachments and returns their spreadsheet parts.
func (c *Connector) FetchWorkbooks(ctx context.Context, label string, max int) ([]internal.FetchedWorkbook, error) {
	listResp, err := c.service.Users.Messages.List("me").
		LabelIds(label).
		Q("has:attachment OR filename:html").
		MaxResults(int64(max)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, apperr.WithCode(apperr.CodeExternalService, err)
	}

	out := make([]internal.FetchedWorkbook, 0, len(listResp.Messages))
	for _, msgRef := range listResp.Messages {
		if msgRef.Id == "" {
			continue
		}

		rawResp, err := c.service.Users.Messages.Get("me", msgRef.Id).Format("raw").Context(ctx).Do()
		if err != nil {
			return nil, apperr.WithCode(apperr.CodeExternalService, err)
		}
		if rawResp.Raw == "" {
			continue
		}

		rawBytes, err := decodeBase64URL(rawResp.Raw)
		if err != nil {
			return nil, err
		}

		received := time.Now().UTC().Format(time.RFC3339)
		if rawResp.InternalDate > 0 {
			received = time.UnixMilli(rawResp.InternalDate).UTC().Format(time.RFC3339)
		} else if t, err := mailDateFallback(headerValue(rawBytes, "Date")); err == nil {
			received = t.UTC().Format(time.RFC3339)
		}

		workbooks, err := connectors.ExtractWorkbooks("gmail", msgRef.Id, received, rawBytes)
		if err != nil {
			internal.DefaultLogger.Warn("gmail: skip message %s: %v", msgRef.Id, err)
			continue
		}
		out = append(out, workbooks...)
	}

	return out, nil
}

// headerValue reads one header from the raw message head.
func headerValue(raw []byte, name string) string {
	head := string(raw)
	if i := strings.Index(head, "\r\n\r\n"); i >= 0 {
		head = head[:i]
	}
	prefix := strings.ToLower(name) + ":"
	for _, line := range strings.Split(head, "\n") {
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}

func decodeBase64URL(input string) ([]byte, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	decoded, err = base64.URLEncoding.DecodeString(input)
	if err == nil {
		return decoded, nil
	}
	return nil, fmt.Errorf("decode gmail raw payload: %w", err)
}

func mailDateFallback(value string) (time.Time, error) {
	layouts := []string{time.RFC1123Z, time.RFC1123, time.RFC822Z, time.RFC822, time.RFC850, time.ANSIC}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date format")
}
