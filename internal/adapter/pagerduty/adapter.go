// Package pagerduty implements the source adapter for PagerDuty V3
// webhooks: incident lifecycle events in, incident notes out. The
// X-PagerDuty-Signature header carries comma-separated "v1=" HMAC
// candidates; any valid candidate authenticates the payload.
package pagerduty

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

const sourceType = "pagerduty"

const apiBase = "https://api.pagerduty.com"

// Source is the PagerDuty adapter for one configured trigger.
// Settings may carry "from_email", required by the notes API.
type Source struct {
	name       string
	secretEnv  string
	tokenEnv   string
	fromEmail  string
	vault      *secrets.Vault
	httpClient *http.Client
	now        func() time.Time
}

func init() {
	source.Register(sourceType, func(cfg trigger.Config, vault *secrets.Vault) (source.Adapter, error) {
		return New(cfg, vault)
	})
}

// New creates a PagerDuty source bound to the trigger's secret references.
func New(cfg trigger.Config, vault *secrets.Vault) (*Source, error) {
	if cfg.SecretEnv == "" {
		return nil, fmt.Errorf("pagerduty: trigger %s: secret_env is required", cfg.Name)
	}
	return &Source{
		name:       cfg.Name,
		secretEnv:  cfg.SecretEnv,
		tokenEnv:   cfg.TokenEnv,
		fromEmail:  cfg.Settings["from_email"],
		vault:      vault,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}, nil
}

func (s *Source) Type() string { return sourceType }

// Verify accepts the payload when any "v1=" candidate in the signature
// header matches, which is how PagerDuty rotates signing secrets.
func (s *Source) Verify(body []byte, header http.Header) error {
	secret, err := s.vault.Resolve(s.secretEnv)
	if err != nil {
		return fmt.Errorf("pagerduty: %w", err)
	}
	return signature.HMACSHA256(body, header.Get("X-PagerDuty-Signature"), secret)
}

// eventPayload is the V3 webhook envelope.
type eventPayload struct {
	Event struct {
		ID        string `json:"id"`
		EventType string `json:"event_type"`
		Agent     struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"agent"`
		Data struct {
			ID      string `json:"id"`
			Title   string `json:"title"`
			Status  string `json:"status"`
			Urgency string `json:"urgency"`
			Service struct {
				ID      string `json:"id"`
				Summary string `json:"summary"`
			} `json:"service"`
		} `json:"data"`
	} `json:"event"`
}

// actionable maps handled event types to the verb injected into the
// message text.
var actionable = map[string]string{
	"incident.triggered":        "triggered",
	"incident.escalated":        "escalated",
	"incident.reopened":         "reopened",
	"incident.annotated":        "annotated",
	"incident.priority_updated": "reprioritized",
}

// Normalize converts incident lifecycle events into the canonical
// message. The incident ID becomes the thread so replies attach as
// notes; the service ID is the channel.
func (s *Source) Normalize(body []byte, _ http.Header) (*message.Message, error) {
	var p eventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("pagerduty: decode event: %w", domain.ErrParse)
	}

	ev := p.Event
	verb, ok := actionable[ev.EventType]
	if !ok {
		return nil, domain.ErrUnsupportedEvent
	}
	if ev.Data.ID == "" || ev.Data.Title == "" {
		return nil, domain.ErrUnsupportedEvent
	}

	text := fmt.Sprintf("incident %s %s: %s", ev.Data.ID, verb, ev.Data.Title)
	msg := &message.Message{
		ID:        ev.ID,
		Source:    sourceType,
		Channel:   ev.Data.Service.ID,
		User:      message.User{ID: ev.Agent.ID},
		Text:      strings.TrimSpace(text),
		Timestamp: s.now(),
		ThreadID:  ev.Data.ID,
	}
	msg.SetMeta(routing.MetaEvent, ev.EventType)
	msg.SetMeta("urgency", ev.Data.Urgency)
	msg.SetMeta("service", ev.Data.Service.Summary)
	return msg, nil
}

// SendMessage adds a note to the incident identified by threadID.
func (s *Source) SendMessage(ctx context.Context, _, threadID, text string) error {
	token, err := s.vault.Resolve(s.tokenEnv)
	if err != nil {
		return fmt.Errorf("pagerduty: %w", err)
	}
	if token == "" {
		return fmt.Errorf("pagerduty: trigger %s has no API token configured", s.name)
	}
	if threadID == "" {
		return fmt.Errorf("pagerduty: reply requires an incident id")
	}

	payload, err := json.Marshal(map[string]any{
		"note": map[string]string{"content": text},
	})
	if err != nil {
		return fmt.Errorf("pagerduty: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/incidents/%s/notes", apiBase, threadID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("pagerduty: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token token="+token)
	if s.fromEmail != "" {
		req.Header.Set("From", s.fromEmail)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pagerduty: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("pagerduty: API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
