// Package telegram implements the source adapter for Telegram bot
// webhooks. Telegram authenticates deliveries with a static secret in
// X-Telegram-Bot-Api-Secret-Token set at setWebhook time.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
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

const sourceType = "telegram"

const apiBase = "https://api.telegram.org"

// Source is the Telegram adapter for one configured trigger. TokenEnv
// references the bot token used for both inbound URL identity and
// outbound sendMessage calls.
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

// New creates a Telegram source bound to the trigger's secret references.
func New(cfg trigger.Config, vault *secrets.Vault) (*Source, error) {
	if cfg.SecretEnv == "" {
		return nil, fmt.Errorf("telegram: trigger %s: secret_env is required", cfg.Name)
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

// Verify compares the webhook secret header in constant time.
func (s *Source) Verify(_ []byte, header http.Header) error {
	want, err := s.vault.Resolve(s.secretEnv)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	return signature.StaticToken(header.Get("X-Telegram-Bot-Api-Secret-Token"), want)
}

// update is the bot API update envelope reduced to message updates.
type update struct {
	UpdateID int64 `json:"update_id"`
	Message  struct {
		MessageID int64 `json:"message_id"`
		From      struct {
			ID       int64  `json:"id"`
			Username string `json:"username"`
			IsBot    bool   `json:"is_bot"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text           string `json:"text"`
		ReplyToMessage *struct {
			MessageID int64 `json:"message_id"`
		} `json:"reply_to_message"`
	} `json:"message"`
}

// Normalize converts a text message update into the canonical message.
// Non-message updates, bot senders, and empty text are unsupported.
func (s *Source) Normalize(body []byte, _ http.Header) (*message.Message, error) {
	var u update
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("telegram: decode update: %w", domain.ErrParse)
	}

	m := u.Message
	if m.MessageID == 0 || m.From.IsBot {
		return nil, domain.ErrUnsupportedEvent
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil, domain.ErrUnsupportedEvent
	}

	msg := &message.Message{
		ID:        strconv.FormatInt(u.UpdateID, 10),
		Source:    sourceType,
		Channel:   strconv.FormatInt(m.Chat.ID, 10),
		User:      message.User{ID: strconv.FormatInt(m.From.ID, 10), Username: m.From.Username},
		Text:      text,
		Timestamp: s.now(),
	}
	if m.ReplyToMessage != nil {
		msg.ReplyTo = strconv.FormatInt(m.ReplyToMessage.MessageID, 10)
	}
	msg.SetMeta(routing.MetaEvent, "message")
	return msg, nil
}

// SendMessage sends text to a chat via the bot API, quoting the
// message in threadID when set.
func (s *Source) SendMessage(ctx context.Context, channel, threadID, text string) error {
	token, err := s.vault.Resolve(s.tokenEnv)
	if err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if token == "" {
		return fmt.Errorf("telegram: trigger %s has no bot token configured", s.name)
	}

	payload := map[string]any{
		"chat_id": channel,
		"text":    text,
	}
	if threadID != "" {
		if id, err := strconv.ParseInt(threadID, 10, 64); err == nil {
			payload["reply_to_message_id"] = id
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("telegram: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", apiBase, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("telegram: API %d: %s", resp.StatusCode, s.vault.RedactString(string(respBody)))
	}
	return nil
}
