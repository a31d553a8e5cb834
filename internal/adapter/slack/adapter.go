// Package slack implements the source adapter for Slack: Events API
// callbacks and slash commands in, chat.postMessage out. Signatures use
// Slack's v0 scheme, HMAC-SHA256 over "v0:{timestamp}:{body}".
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/message"
	"github.com/Strob0t/TriggerGate/internal/domain/routing"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
	"github.com/Strob0t/TriggerGate/internal/secrets"
	"github.com/Strob0t/TriggerGate/internal/signature"
)

const sourceType = "slack"

// maxSkew bounds the age of the signed timestamp; older requests are
// rejected to blunt replay of captured signatures.
const maxSkew = 5 * time.Minute

const apiURL = "https://slack.com/api/chat.postMessage"

// Source is the Slack adapter for one configured trigger.
type Source struct {
	name       string
	secretEnv  string
	tokenEnv   string
	vault      *secrets.Vault
	httpClient *http.Client
	now        func() time.Time
}

// New creates a Slack source bound to the trigger's secret references.
// Secrets are resolved per call so a vault reload takes effect without
// a restart.
func New(cfg trigger.Config, vault *secrets.Vault) (*Source, error) {
	if cfg.SecretEnv == "" {
		return nil, fmt.Errorf("slack: trigger %s: secret_env is required", cfg.Name)
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

// Verify checks the v0 signature over "v0:{timestamp}:{body}" and
// rejects stale timestamps.
func (s *Source) Verify(body []byte, header http.Header) error {
	secret, err := s.vault.Resolve(s.secretEnv)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}

	ts := header.Get("X-Slack-Request-Timestamp")
	sig := header.Get("X-Slack-Signature")
	if ts == "" || sig == "" {
		return domain.ErrInvalidSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return domain.ErrInvalidSignature
	}
	age := s.now().Sub(time.Unix(unix, 0))
	if age > maxSkew || age < -maxSkew {
		return domain.ErrInvalidSignature
	}

	base := fmt.Sprintf("v0:%s:%s", ts, body)
	return signature.HMACCompare([]byte(base), sig, "v0=", secret)
}

// eventPayload is the Events API callback shape, reduced to the fields
// the gateway reads.
type eventPayload struct {
	Type  string `json:"type"`
	Event struct {
		Type     string `json:"type"`
		User     string `json:"user"`
		BotID    string `json:"bot_id"`
		Text     string `json:"text"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"event"`
	EventID string `json:"event_id"`
}

// Normalize decodes an Events API callback or a slash command form into
// the canonical message. Bot-authored events and event kinds other than
// messages and mentions are reported as unsupported.
func (s *Source) Normalize(body []byte, header http.Header) (*message.Message, error) {
	if strings.HasPrefix(header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		return s.normalizeSlashCommand(body)
	}

	var p eventPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("slack: decode event: %w", domain.ErrParse)
	}
	if p.Type != "event_callback" {
		return nil, domain.ErrUnsupportedEvent
	}
	switch p.Event.Type {
	case "message", "app_mention":
	default:
		return nil, domain.ErrUnsupportedEvent
	}
	if p.Event.BotID != "" {
		// Our own replies come back through the Events API; acting on
		// them would loop.
		return nil, domain.ErrUnsupportedEvent
	}
	if p.Event.User == "" || p.Event.Text == "" {
		return nil, domain.ErrUnsupportedEvent
	}

	msg := &message.Message{
		ID:        p.EventID,
		Source:    sourceType,
		Channel:   p.Event.Channel,
		User:      message.User{ID: p.Event.User},
		Text:      strings.TrimSpace(p.Event.Text),
		Timestamp: s.now(),
		ThreadID:  p.Event.ThreadTS,
	}
	if msg.ID == "" {
		msg.ID = p.Event.TS
	}
	msg.SetMeta(routing.MetaEvent, p.Event.Type)
	return msg, nil
}

func (s *Source) normalizeSlashCommand(body []byte) (*message.Message, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("slack: decode slash command: %w", domain.ErrParse)
	}
	cmd := form.Get("command")
	if cmd == "" {
		return nil, domain.ErrUnsupportedEvent
	}

	text := strings.TrimSpace(strings.TrimPrefix(cmd, "/") + " " + form.Get("text"))
	msg := &message.Message{
		ID:        form.Get("trigger_id"),
		Source:    sourceType,
		Channel:   form.Get("channel_id"),
		User:      message.User{ID: form.Get("user_id"), Username: form.Get("user_name")},
		Text:      text,
		Timestamp: s.now(),
	}
	msg.SetMeta(routing.MetaEvent, "slash_command")
	return msg, nil
}

// SendMessage posts text to a channel via chat.postMessage, replying in
// the thread when threadID is set.
func (s *Source) SendMessage(ctx context.Context, channel, threadID, text string) error {
	token, err := s.vault.Resolve(s.tokenEnv)
	if err != nil {
		return fmt.Errorf("slack: %w", err)
	}
	if token == "" {
		return fmt.Errorf("slack: trigger %s has no bot token configured", s.name)
	}

	payload := map[string]string{
		"channel": channel,
		"text":    text,
	}
	if threadID != "" {
		payload["thread_ts"] = threadID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("slack: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("slack: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack: API %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil && !result.OK {
		return fmt.Errorf("slack: API error: %s", result.Error)
	}
	return nil
}
