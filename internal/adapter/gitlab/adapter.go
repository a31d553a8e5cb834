// Package gitlab implements the source adapter for GitLab webhooks:
// note, issue, and merge request hooks in, discussion notes out.
// GitLab authenticates with a static token in X-Gitlab-Token.
package gitlab

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

const sourceType = "gitlab"

const defaultAPIBase = "https://gitlab.com/api/v4"

// Source is the GitLab adapter for one configured trigger. The
// settings map may carry "api_base" for self-hosted instances.
type Source struct {
	name       string
	tokenRef   string // webhook secret token (X-Gitlab-Token)
	apiToken   string // env ref for the API token used by SendMessage
	apiBase    string
	vault      *secrets.Vault
	httpClient *http.Client
	now        func() time.Time
}

func init() {
	source.Register(sourceType, func(cfg trigger.Config, vault *secrets.Vault) (source.Adapter, error) {
		return New(cfg, vault)
	})
}

// New creates a GitLab source bound to the trigger's secret references.
func New(cfg trigger.Config, vault *secrets.Vault) (*Source, error) {
	if cfg.SecretEnv == "" {
		return nil, fmt.Errorf("gitlab: trigger %s: secret_env is required", cfg.Name)
	}
	base := cfg.Settings["api_base"]
	if base == "" {
		base = defaultAPIBase
	}
	return &Source{
		name:       cfg.Name,
		tokenRef:   cfg.SecretEnv,
		apiToken:   cfg.TokenEnv,
		apiBase:    strings.TrimRight(base, "/"),
		vault:      vault,
		httpClient: http.DefaultClient,
		now:        time.Now,
	}, nil
}

func (s *Source) Type() string { return sourceType }

// Verify compares the X-Gitlab-Token header against the configured
// secret in constant time.
func (s *Source) Verify(_ []byte, header http.Header) error {
	want, err := s.vault.Resolve(s.tokenRef)
	if err != nil {
		return fmt.Errorf("gitlab: %w", err)
	}
	return signature.StaticToken(header.Get("X-Gitlab-Token"), want)
}

// hookPayload covers note, issue, and merge request hooks.
type hookPayload struct {
	ObjectKind string `json:"object_kind"`
	User       struct {
		ID       int    `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
	Project struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	ObjectAttributes struct {
		ID          int    `json:"id"`
		IID         int    `json:"iid"`
		Note        string `json:"note"`
		Title       string `json:"title"`
		Description string `json:"description"`
		Action      string `json:"action"`
		System      bool   `json:"system"`
	} `json:"object_attributes"`
	Issue struct {
		IID int `json:"iid"`
	} `json:"issue"`
	MergeRequest struct {
		IID int `json:"iid"`
	} `json:"merge_request"`
}

// Normalize converts a note, issue, or merge_request hook into the
// canonical message. The channel is "{project}!{iid}" for merge
// requests and "{project}#{iid}" for issues so replies target the
// right discussion.
func (s *Source) Normalize(body []byte, _ http.Header) (*message.Message, error) {
	var p hookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("gitlab: decode hook: %w", domain.ErrParse)
	}

	var (
		text    string
		channel string
	)
	project := p.Project.PathWithNamespace

	switch p.ObjectKind {
	case "note":
		if p.ObjectAttributes.System {
			return nil, domain.ErrUnsupportedEvent
		}
		text = p.ObjectAttributes.Note
		switch {
		case p.MergeRequest.IID != 0:
			channel = fmt.Sprintf("%s!%d", project, p.MergeRequest.IID)
		case p.Issue.IID != 0:
			channel = fmt.Sprintf("%s#%d", project, p.Issue.IID)
		default:
			return nil, domain.ErrUnsupportedEvent
		}
	case "issue":
		if p.ObjectAttributes.Action != "open" {
			return nil, domain.ErrUnsupportedEvent
		}
		text = strings.TrimSpace(p.ObjectAttributes.Title + "\n" + p.ObjectAttributes.Description)
		channel = fmt.Sprintf("%s#%d", project, p.ObjectAttributes.IID)
	case "merge_request":
		if p.ObjectAttributes.Action != "open" {
			return nil, domain.ErrUnsupportedEvent
		}
		text = strings.TrimSpace(p.ObjectAttributes.Title + "\n" + p.ObjectAttributes.Description)
		channel = fmt.Sprintf("%s!%d", project, p.ObjectAttributes.IID)
	default:
		return nil, domain.ErrUnsupportedEvent
	}

	if text == "" || p.User.Username == "" {
		return nil, domain.ErrUnsupportedEvent
	}

	msg := &message.Message{
		ID:        strconv.Itoa(p.ObjectAttributes.ID),
		Source:    sourceType,
		Channel:   channel,
		User:      message.User{ID: strconv.Itoa(p.User.ID), Username: p.User.Username},
		Text:      strings.TrimSpace(text),
		Timestamp: s.now(),
	}
	msg.SetMeta(routing.MetaEvent, p.ObjectKind)
	msg.SetMeta("project", project)
	return msg, nil
}

// SendMessage posts a note on the issue or merge request encoded in
// the channel ("{project}#{iid}" or "{project}!{iid}").
func (s *Source) SendMessage(ctx context.Context, channel, _ string, text string) error {
	token, err := s.vault.Resolve(s.apiToken)
	if err != nil {
		return fmt.Errorf("gitlab: %w", err)
	}
	if token == "" {
		return fmt.Errorf("gitlab: trigger %s has no API token configured", s.name)
	}

	var project, iid, kind string
	if p, n, ok := strings.Cut(channel, "!"); ok {
		project, iid, kind = p, n, "merge_requests"
	} else if p, n, ok := strings.Cut(channel, "#"); ok {
		project, iid, kind = p, n, "issues"
	} else {
		return fmt.Errorf("gitlab: channel %q is not project#iid or project!iid", channel)
	}

	payload, err := json.Marshal(map[string]string{"body": text})
	if err != nil {
		return fmt.Errorf("gitlab: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/projects/%s/%s/%s/notes",
		s.apiBase, strings.ReplaceAll(project, "/", "%2F"), kind, iid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gitlab: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PRIVATE-TOKEN", token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gitlab: send: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("gitlab: API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
