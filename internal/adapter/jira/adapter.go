// Package jira implements the source adapter for Jira webhooks: issue
// and comment events in, issue comments out. Jira signs automation
// webhooks with HMAC-SHA256 in X-Hub-Signature.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/message"
	"github.com/Strob0t/TriggerGate/internal/domain/routing"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
	"github.com/Strob0t/TriggerGate/internal/port/source"
	"github.com/Strob0t/TriggerGate/internal/secrets"
	"github.com/Strob0t/TriggerGate/internal/signature"
)

const sourceType = "jira"

// Source is the Jira adapter for one configured trigger. Settings
// must carry "base_url" (the site URL) for outbound comments;
// TokenEnv references "email:api_token" basic credentials.
type Source struct {
	name       string
	secretEnv  string
	tokenEnv   string
	baseURL    string
	vault      *secrets.Vault
	httpClient *http.Client
	now        func() time.Time
}

func init() {
	source.Register(sourceType, func(cfg trigger.Config, vault *secrets.Vault) (source.Adapter, error) {
		return New(cfg, vault)
	})
}

// New creates a Jira source bound to the trigger's secret references.
func New(cfg trigger.Config, vault *secrets.Vault) (*Source, error) {
	if cfg.SecretEnv == "" {
		return nil, fmt.Errorf("jira: trigger %s: secret_env is required", cfg.Name)
	}
	return &Source{
		name:       cfg.Name,
		secretEnv:  cfg.SecretEnv,
		tokenEnv:   cfg.TokenEnv,
		baseURL:    strings.TrimRight(cfg.Settings["base_url"], "/"),
		vault:      vault,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}, nil
}

func (s *Source) Type() string { return sourceType }

// Verify checks the sha256= HMAC signature over the raw body.
func (s *Source) Verify(body []byte, header http.Header) error {
	secret, err := s.vault.Resolve(s.secretEnv)
	if err != nil {
		return fmt.Errorf("jira: %w", err)
	}
	return signature.HMACSHA256(body, header.Get("X-Hub-Signature"), secret)
}

// eventPayload covers jira:issue_created and comment_created events.
type eventPayload struct {
	WebhookEvent string `json:"webhookEvent"`
	Issue        struct {
		ID     string `json:"id"`
		Key    string `json:"key"`
		Fields struct {
			Summary     string `json:"summary"`
			Description string `json:"description"`
		} `json:"fields"`
	} `json:"issue"`
	Comment struct {
		ID     string `json:"id"`
		Body   string `json:"body"`
		Author struct {
			AccountID   string `json:"accountId"`
			DisplayName string `json:"displayName"`
		} `json:"author"`
	} `json:"comment"`
	User struct {
		AccountID   string `json:"accountId"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

// Normalize converts an issue-created or comment-created event into
// the canonical message, with the issue key as the channel.
func (s *Source) Normalize(body []byte, _ http.Header) (*message.Message, error) {
	var p eventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("jira: decode event: %w", domain.ErrParse)
	}

	var (
		id, text         string
		userID, username string
	)
	switch p.WebhookEvent {
	case "comment_created":
		id = "c" + p.Comment.ID
		text = p.Comment.Body
		userID = p.Comment.Author.AccountID
		username = p.Comment.Author.DisplayName
	case "jira:issue_created":
		id = "i" + p.Issue.ID
		text = strings.TrimSpace(p.Issue.Fields.Summary + "\n" + p.Issue.Fields.Description)
		userID = p.User.AccountID
		username = p.User.DisplayName
	default:
		return nil, domain.ErrUnsupportedEvent
	}

	if text == "" || userID == "" || p.Issue.Key == "" {
		return nil, domain.ErrUnsupportedEvent
	}

	msg := &message.Message{
		ID:        id,
		Source:    sourceType,
		Channel:   p.Issue.Key,
		User:      message.User{ID: userID, Username: username},
		Text:      strings.TrimSpace(text),
		Timestamp: s.now(),
	}
	msg.SetMeta(routing.MetaEvent, p.WebhookEvent)
	return msg, nil
}

// SendMessage adds a comment to the issue named by the channel.
func (s *Source) SendMessage(ctx context.Context, channel, _ string, text string) error {
	creds, err := s.vault.Resolve(s.tokenEnv)
	if err != nil {
		return fmt.Errorf("jira: %w", err)
	}
	if creds == "" || s.baseURL == "" {
		return fmt.Errorf("jira: trigger %s has no API credentials or base_url configured", s.name)
	}
	email, token, ok := strings.Cut(creds, ":")
	if !ok {
		return fmt.Errorf("jira: credentials must be email:api_token")
	}

	payload, err := json.Marshal(map[string]any{
		"body": map[string]any{
			"type":    "doc",
			"version": 1,
			"content": []map[string]any{
				{"type": "paragraph", "content": []map[string]any{{"type": "text", "text": text}}},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("jira: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/rest/api/3/issue/%s/comment", s.baseURL, channel)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("jira: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(email, token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("jira: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("jira: API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
