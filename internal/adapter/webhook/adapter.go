// Package webhook implements the generic source adapter for systems
// without a dedicated integration. Verification mode is configurable
// per trigger: "hmac" (hex HMAC-SHA256 over the body), "token"
// (static header compare), or "none" for trusted internal networks.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/message"
	"github.com/Strob0t/TriggerGate/internal/domain/routing"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
	"github.com/Strob0t/TriggerGate/internal/port/source"
	"github.com/Strob0t/TriggerGate/internal/secrets"
	"github.com/Strob0t/TriggerGate/internal/signature"
)

const sourceType = "webhook"

// Verification modes accepted in the trigger's settings.
const (
	modeHMAC  = "hmac"
	modeToken = "token"
	modeNone  = "none"
)

const defaultSignatureHeader = "X-Signature"

// Source is the generic webhook adapter for one configured trigger.
// Settings: "mode" (hmac|token|none, default hmac), "signature_header"
// and "reply_url" (optional POST target for outbound messages).
type Source struct {
	name       string
	mode       string
	sigHeader  string
	secretEnv  string
	replyURL   string
	vault      *secrets.Vault
	httpClient *http.Client
	now        func() time.Time
}

func init() {
	source.Register(sourceType, func(cfg trigger.Config, vault *secrets.Vault) (source.Adapter, error) {
		return New(cfg, vault)
	})
}

// New creates a generic webhook source from the trigger record.
func New(cfg trigger.Config, vault *secrets.Vault) (*Source, error) {
	mode := cfg.Settings["mode"]
	if mode == "" {
		mode = modeHMAC
	}
	switch mode {
	case modeHMAC, modeToken, modeNone:
	default:
		return nil, fmt.Errorf("webhook: trigger %s: unknown mode %q", cfg.Name, mode)
	}
	if mode != modeNone && cfg.SecretEnv == "" {
		return nil, fmt.Errorf("webhook: trigger %s: secret_env is required for mode %s", cfg.Name, mode)
	}

	sigHeader := cfg.Settings["signature_header"]
	if sigHeader == "" {
		sigHeader = defaultSignatureHeader
	}

	return &Source{
		name:       cfg.Name,
		mode:       mode,
		sigHeader:  sigHeader,
		secretEnv:  cfg.SecretEnv,
		replyURL:   cfg.Settings["reply_url"],
		vault:      vault,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}, nil
}

func (s *Source) Type() string { return sourceType }

// Verify applies the configured verification mode.
func (s *Source) Verify(body []byte, header http.Header) error {
	if s.mode == modeNone {
		return nil
	}
	secret, err := s.vault.Resolve(s.secretEnv)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	switch s.mode {
	case modeHMAC:
		return signature.HMACSHA256(body, header.Get(s.sigHeader), secret)
	case modeToken:
		return signature.StaticToken(header.Get(s.sigHeader), secret)
	}
	return domain.ErrInvalidSignature
}

// payload is the generic inbound shape. Only text is mandatory; a
// missing id gets a random one, trading replay protection for
// compatibility with senders that have no delivery IDs.
type payload struct {
	ID       string            `json:"id"`
	Channel  string            `json:"channel"`
	User     string            `json:"user"`
	Username string            `json:"username"`
	Text     string            `json:"text"`
	Event    string            `json:"event"`
	Metadata map[string]string `json:"metadata"`
}

// Normalize decodes the generic JSON payload.
func (s *Source) Normalize(body []byte, _ http.Header) (*message.Message, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("webhook: decode payload: %w", domain.ErrParse)
	}

	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil, domain.ErrUnsupportedEvent
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	msg := &message.Message{
		ID:        p.ID,
		Source:    sourceType,
		Channel:   p.Channel,
		User:      message.User{ID: p.User, Username: p.Username},
		Text:      text,
		Timestamp: s.now(),
		Metadata:  p.Metadata,
	}
	if p.Event != "" {
		msg.SetMeta(routing.MetaEvent, p.Event)
	}
	return msg, nil
}

// SendMessage posts a JSON reply to the configured reply_url. Without
// one the send is a no-op error so callers can log and move on.
func (s *Source) SendMessage(ctx context.Context, channel, threadID, text string) error {
	if s.replyURL == "" {
		return fmt.Errorf("webhook: trigger %s has no reply_url configured", s.name)
	}

	body, err := json.Marshal(map[string]string{
		"channel":   channel,
		"thread_id": threadID,
		"text":      text,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.replyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("webhook: reply %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
