// Package linear implements the source adapter for Linear webhooks:
// issue and comment events in, GraphQL comment mutations out. Linear
// signs payloads with plain hex HMAC-SHA256 in Linear-Signature.
package linear

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

const sourceType = "linear"

const apiURL = "https://api.linear.app/graphql"

// Source is the Linear adapter for one configured trigger.
type Source struct {
	name       string
	secretEnv  string
	tokenEnv   string
	vault      *secrets.Vault
	httpClient *http.Client
	now        func() time.Time
}

func init() {
	source.Register(sourceType, func(cfg trigger.Config, vault *secrets.Vault) (source.Adapter, error) {
		return New(cfg, vault)
	})
}

// New creates a Linear source bound to the trigger's secret references.
func New(cfg trigger.Config, vault *secrets.Vault) (*Source, error) {
	if cfg.SecretEnv == "" {
		return nil, fmt.Errorf("linear: trigger %s: secret_env is required", cfg.Name)
	}
	return &Source{
		name:       cfg.Name,
		secretEnv:  cfg.SecretEnv,
		tokenEnv:   cfg.TokenEnv,
		vault:      vault,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}, nil
}

func (s *Source) Type() string { return sourceType }

// Verify checks the hex HMAC signature over the raw body.
func (s *Source) Verify(body []byte, header http.Header) error {
	secret, err := s.vault.Resolve(s.secretEnv)
	if err != nil {
		return fmt.Errorf("linear: %w", err)
	}
	return signature.HMACSHA256(body, header.Get("Linear-Signature"), secret)
}

// eventPayload covers Issue and Comment create events.
type eventPayload struct {
	Action string `json:"action"`
	Type   string `json:"type"`
	Data   struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Body    string `json:"body"`
		IssueID string `json:"issueId"`
		Team    struct {
			Key string `json:"key"`
		} `json:"team"`
		User struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"user"`
	} `json:"data"`
}

// Normalize converts Issue/Comment create events into the canonical
// message; the team key is the channel and the issue ID (the comment's
// parent for comments) is kept for replies.
func (s *Source) Normalize(body []byte, _ http.Header) (*message.Message, error) {
	var p eventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("linear: decode event: %w", domain.ErrParse)
	}

	if p.Action != "create" {
		return nil, domain.ErrUnsupportedEvent
	}

	var text, issueID string
	switch p.Type {
	case "Comment":
		text, issueID = p.Data.Body, p.Data.IssueID
	case "Issue":
		text, issueID = strings.TrimSpace(p.Data.Title+"\n"+p.Data.Body), p.Data.ID
	default:
		return nil, domain.ErrUnsupportedEvent
	}

	if text == "" || p.Data.User.ID == "" {
		return nil, domain.ErrUnsupportedEvent
	}

	msg := &message.Message{
		ID:        p.Data.ID,
		Source:    sourceType,
		Channel:   p.Data.Team.Key,
		User:      message.User{ID: p.Data.User.ID, Username: p.Data.User.Name},
		Text:      strings.TrimSpace(text),
		Timestamp: s.now(),
		ThreadID:  issueID,
	}
	msg.SetMeta(routing.MetaEvent, strings.ToLower(p.Type))
	return msg, nil
}

// SendMessage posts a comment on the issue identified by threadID via
// the GraphQL API. Linear has no free-standing channel messages, so an
// empty threadID is an error.
func (s *Source) SendMessage(ctx context.Context, _, threadID, text string) error {
	token, err := s.vault.Resolve(s.tokenEnv)
	if err != nil {
		return fmt.Errorf("linear: %w", err)
	}
	if token == "" {
		return fmt.Errorf("linear: trigger %s has no API token configured", s.name)
	}
	if threadID == "" {
		return fmt.Errorf("linear: reply requires an issue id")
	}

	query := map[string]any{
		"query": `mutation CommentCreate($input: CommentCreateInput!) {
			commentCreate(input: $input) { success }
		}`,
		"variables": map[string]any{
			"input": map[string]string{"issueId": threadID, "body": text},
		},
	}
	payload, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("linear: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("linear: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("linear: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("linear: API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
