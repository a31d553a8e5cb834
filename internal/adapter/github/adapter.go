// Package github implements the source adapter for GitHub webhooks:
// issue comments, issues, and pull requests in, issue comments out.
// Payloads are authenticated with HMAC-SHA256 via X-Hub-Signature-256.
package github

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

const sourceType = "github"

const apiBase = "https://api.github.com"

// Source is the GitHub adapter for one configured trigger.
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

// New creates a GitHub source bound to the trigger's secret references.
func New(cfg trigger.Config, vault *secrets.Vault) (*Source, error) {
	if cfg.SecretEnv == "" {
		return nil, fmt.Errorf("github: trigger %s: secret_env is required", cfg.Name)
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

// Verify checks the sha256= HMAC signature over the raw body.
func (s *Source) Verify(body []byte, header http.Header) error {
	secret, err := s.vault.Resolve(s.secretEnv)
	if err != nil {
		return fmt.Errorf("github: %w", err)
	}
	return signature.HMACSHA256(body, header.Get("X-Hub-Signature-256"), secret)
}

type user struct {
	Login string `json:"login"`
	Type  string `json:"type"`
}

// webhookPayload covers issue_comment, issues, and pull_request events;
// unused fields decode to zero values.
type webhookPayload struct {
	Action     string `json:"action"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender  user `json:"sender"`
	Comment struct {
		Body string `json:"body"`
		User user   `json:"user"`
	} `json:"comment"`
	Issue struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		User   user   `json:"user"`
	} `json:"issue"`
	PullRequest struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
		User   user   `json:"user"`
	} `json:"pull_request"`
}

// Normalize converts an issue_comment, issues, or pull_request payload
// into the canonical message. The channel is "{repo}#{number}" so
// replies land on the same issue. Everything else, ping included, is
// unsupported.
func (s *Source) Normalize(body []byte, header http.Header) (*message.Message, error) {
	event := header.Get("X-GitHub-Event")
	delivery := header.Get("X-GitHub-Delivery")

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("github: decode %s: %w", event, domain.ErrParse)
	}

	var (
		text   string
		author user
		number int
	)
	switch event {
	case "issue_comment":
		if p.Action != "created" {
			return nil, domain.ErrUnsupportedEvent
		}
		text, author, number = p.Comment.Body, p.Comment.User, p.Issue.Number
	case "issues":
		if p.Action != "opened" {
			return nil, domain.ErrUnsupportedEvent
		}
		text = strings.TrimSpace(p.Issue.Title + "\n" + p.Issue.Body)
		author, number = p.Issue.User, p.Issue.Number
	case "pull_request":
		if p.Action != "opened" {
			return nil, domain.ErrUnsupportedEvent
		}
		text = strings.TrimSpace(p.PullRequest.Title + "\n" + p.PullRequest.Body)
		author, number = p.PullRequest.User, p.PullRequest.Number
	default:
		return nil, domain.ErrUnsupportedEvent
	}

	if text == "" || author.Login == "" {
		return nil, domain.ErrUnsupportedEvent
	}
	if author.Type == "Bot" || strings.HasSuffix(author.Login, "[bot]") {
		return nil, domain.ErrUnsupportedEvent
	}

	msg := &message.Message{
		ID:        delivery,
		Source:    sourceType,
		Channel:   fmt.Sprintf("%s#%d", p.Repository.FullName, number),
		User:      message.User{ID: author.Login, Username: author.Login},
		Text:      strings.TrimSpace(text),
		Timestamp: s.now(),
	}
	msg.SetMeta(routing.MetaEvent, event)
	msg.SetMeta("repository", p.Repository.FullName)
	return msg, nil
}

// SendMessage posts an issue comment. The channel must be in the
// "{owner}/{repo}#{number}" form produced by Normalize.
func (s *Source) SendMessage(ctx context.Context, channel, _ string, text string) error {
	token, err := s.vault.Resolve(s.tokenEnv)
	if err != nil {
		return fmt.Errorf("github: %w", err)
	}
	if token == "" {
		return fmt.Errorf("github: trigger %s has no API token configured", s.name)
	}

	repo, number, ok := strings.Cut(channel, "#")
	if !ok {
		return fmt.Errorf("github: channel %q is not repo#number", channel)
	}

	body, err := json.Marshal(map[string]string{"body": text})
	if err != nil {
		return fmt.Errorf("github: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/repos/%s/issues/%s/comments", apiBase, repo, number)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("github: request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github: API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
