package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	ggmail "google.golang.org/api/gmail/v1"
	goption "google.golang.org/api/option"

	ports "tally/internal/sources/gmail"
)

// Client reads notification mail through the Gmail API.
type Client struct {
	svc *ggmail.Service
}

var _ ports.Mailbox = (*Client)(nil)

// NewFromEnv creates a Gmail client from OAuth client credentials plus a
// previously issued user token (see cmd/oauth-init).
// Required: GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE, and
// GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE.
func NewFromEnv(ctx context.Context) (*Client, error) {
	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))

	var b []byte
	var err error
	switch {
	case clientJSON != "":
		b = []byte(clientJSON)
	case clientFile != "":
		b, err = os.ReadFile(clientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
	default:
		return nil, errors.New("missing oauth client credentials (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}

	cfg, err := goauth.ConfigFromJSON(b, ggmail.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	tok, err := loadToken()
	if err != nil {
		return nil, err
	}

	svc, err := ggmail.NewService(ctx, goption.WithTokenSource(cfg.TokenSource(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}

	slog.InfoContext(ctx, "Gmail service created", "scope", ggmail.GmailReadonlyScope)
	return &Client{svc: svc}, nil
}

func loadToken() (*oauth2.Token, error) {
	tokenJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_JSON"))
	tokenFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE"))

	var b []byte
	var err error
	switch {
	case tokenJSON != "":
		b = []byte(tokenJSON)
	case tokenFile != "":
		b, err = os.ReadFile(tokenFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth token file: %w", err)
		}
	default:
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE, run oauth-init first)")
	}

	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return &tok, nil
}

// Search lists messages matching a Gmail query and fetches their details.
func (c *Client) Search(ctx context.Context, query string, maxResults int64) ([]ports.Message, error) {
	if c.svc == nil {
		return nil, errors.New("gmail service not initialized")
	}

	resp, err := c.svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]ports.Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		msg, err := c.svc.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			slog.WarnContext(ctx, "Failed to fetch message", "message_id", ref.Id, "error", err)
			continue
		}
		out = append(out, decodeMessage(msg))
	}
	return out, nil
}

func decodeMessage(msg *ggmail.Message) ports.Message {
	m := ports.Message{ID: msg.Id}
	if msg.Payload == nil {
		return m
	}

	for _, h := range msg.Payload.Headers {
		switch h.Name {
		case "Subject":
			m.Subject = h.Value
		case "Date":
			if t, err := mail.ParseDate(h.Value); err == nil {
				m.Date = t
			}
		}
	}
	if m.Date.IsZero() && msg.InternalDate > 0 {
		m.Date = time.UnixMilli(msg.InternalDate)
	}

	m.Body = extractBody(msg.Payload)
	return m
}

// extractBody walks the MIME tree preferring text/plain parts.
func extractBody(part *ggmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if part.Body != nil && part.Body.Data != "" &&
		(part.MimeType == "text/plain" || len(part.Parts) == 0) {
		if decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(part.Body.Data, "=")); err == nil {
			return string(decoded)
		}
	}
	for _, p := range part.Parts {
		if p.MimeType == "text/plain" {
			if body := extractBody(p); body != "" {
				return body
			}
		}
	}
	for _, p := range part.Parts {
		if body := extractBody(p); body != "" {
			return body
		}
	}
	return ""
}
