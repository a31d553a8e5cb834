// Package discord implements the source adapter for Discord
// interactions. Requests are authenticated with Ed25519 over
// "{timestamp}{body}" using the application's public key; replies go
// out through the bot API.
package discord

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

const sourceType = "discord"

const apiBase = "https://discord.com/api/v10"

// Interaction types from the Discord gateway protocol.
const (
	interactionPing    = 1
	interactionCommand = 2
)

// Source is the Discord adapter for one configured trigger. SecretEnv
// references the application public key (hex), TokenEnv the bot token.
type Source struct {
	name       string
	pubKeyEnv  string
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

// New creates a Discord source bound to the trigger's secret references.
func New(cfg trigger.Config, vault *secrets.Vault) (*Source, error) {
	if cfg.SecretEnv == "" {
		return nil, fmt.Errorf("discord: trigger %s: secret_env is required", cfg.Name)
	}
	return &Source{
		name:       cfg.Name,
		pubKeyEnv:  cfg.SecretEnv,
		tokenEnv:   cfg.TokenEnv,
		vault:      vault,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}, nil
}

func (s *Source) Type() string { return sourceType }

// Verify checks the Ed25519 signature over timestamp||body.
func (s *Source) Verify(body []byte, header http.Header) error {
	pubKey, err := s.vault.Resolve(s.pubKeyEnv)
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return signature.Ed25519(
		body,
		header.Get("X-Signature-Timestamp"),
		header.Get("X-Signature-Ed25519"),
		pubKey,
	)
}

// interaction is the slash-command payload reduced to what the gateway
// reads.
type interaction struct {
	ID        string `json:"id"`
	Type      int    `json:"type"`
	ChannelID string `json:"channel_id"`
	Member    struct {
		User struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Bot      bool   `json:"bot"`
		} `json:"user"`
	} `json:"member"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Bot      bool   `json:"bot"`
	} `json:"user"`
	Data struct {
		Name    string `json:"name"`
		Options []struct {
			Name  string          `json:"name"`
			Value json.RawMessage `json:"value"`
		} `json:"options"`
	} `json:"data"`
}

// Normalize decodes an application command interaction. Pings are
// unsupported here; the HTTP layer answers them with a pong before
// normalization.
func (s *Source) Normalize(body []byte, _ http.Header) (*message.Message, error) {
	var in interaction
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, fmt.Errorf("discord: decode interaction: %w", domain.ErrParse)
	}

	if in.Type != interactionCommand {
		return nil, domain.ErrUnsupportedEvent
	}

	user := in.Member.User
	if user.ID == "" {
		user = in.User // DM interactions carry the user at top level
	}
	if user.ID == "" || user.Bot {
		return nil, domain.ErrUnsupportedEvent
	}

	// Flatten "/deploy target:api env:staging" into plain command text.
	parts := []string{in.Data.Name}
	for _, opt := range in.Data.Options {
		parts = append(parts, strings.Trim(string(opt.Value), `"`))
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		return nil, domain.ErrUnsupportedEvent
	}

	msg := &message.Message{
		ID:        in.ID,
		Source:    sourceType,
		Channel:   in.ChannelID,
		User:      message.User{ID: user.ID, Username: user.Username, Bot: user.Bot},
		Text:      text,
		Timestamp: s.now(),
	}
	msg.SetMeta(routing.MetaEvent, "application_command")
	return msg, nil
}

// SendMessage posts text to a channel through the bot API. Discord
// threads are channels, so a non-empty threadID replaces the channel.
func (s *Source) SendMessage(ctx context.Context, channel, threadID, text string) error {
	token, err := s.vault.Resolve(s.tokenEnv)
	if err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	if token == "" {
		return fmt.Errorf("discord: trigger %s has no bot token configured", s.name)
	}

	target := channel
	if threadID != "" {
		target = threadID
	}

	body, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("discord: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/channels/%s/messages", apiBase, target)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bot "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("discord: API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
