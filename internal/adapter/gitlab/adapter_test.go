package gitlab

import (
	"errors"
	"net/http"
	"testing"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
	"github.com/Strob0t/TriggerGate/internal/secrets"
)

func testSource(t *testing.T) *Source {
	t.Helper()
	vault, err := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{
			"GITLAB_HOOK_TOKEN": "hook-token-value",
			"GITLAB_API_TOKEN":  "glpat-test",
		}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(trigger.Config{
		Name:      "repo-gitlab",
		Type:      "gitlab",
		SecretEnv: "GITLAB_HOOK_TOKEN",
		TokenEnv:  "GITLAB_API_TOKEN",
	}, vault)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestVerify(t *testing.T) {
	s := testSource(t)

	header := http.Header{}
	header.Set("X-Gitlab-Token", "hook-token-value")
	if err := s.Verify(nil, header); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}

	header.Set("X-Gitlab-Token", "wrong")
	if err := s.Verify(nil, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}

	if err := s.Verify(nil, http.Header{}); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for missing header, got %v", err)
	}
}

func TestNormalizeNote(t *testing.T) {
	s := testSource(t)

	body := []byte(`{
		"object_kind": "note",
		"user": {"id": 5, "username": "jo"},
		"project": {"path_with_namespace": "acme/api"},
		"object_attributes": {"id": 999, "note": "rollback payments to v1.4"},
		"merge_request": {"iid": 17}
	}`)

	msg, err := s.Normalize(body, http.Header{})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Channel != "acme/api!17" {
		t.Errorf("Channel = %s", msg.Channel)
	}
	if msg.Text != "rollback payments to v1.4" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.User.Username != "jo" {
		t.Errorf("Username = %s", msg.User.Username)
	}
	if msg.DeliveryKey() != "gitlab:999" {
		t.Errorf("DeliveryKey = %s", msg.DeliveryKey())
	}
}

func TestNormalizeIssueOpened(t *testing.T) {
	s := testSource(t)

	body := []byte(`{
		"object_kind": "issue",
		"user": {"id": 5, "username": "jo"},
		"project": {"path_with_namespace": "acme/api"},
		"object_attributes": {"id": 31, "iid": 8, "title": "scale workers", "description": "to 5 replicas", "action": "open"}
	}`)

	msg, err := s.Normalize(body, http.Header{})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Channel != "acme/api#8" {
		t.Errorf("Channel = %s", msg.Channel)
	}
	if msg.Text != "scale workers\nto 5 replicas" {
		t.Errorf("Text = %q", msg.Text)
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	s := testSource(t)

	tests := []struct {
		name string
		body string
	}{
		{"system note", `{"object_kind":"note","user":{"username":"jo"},"object_attributes":{"note":"x","system":true},"issue":{"iid":1}}`},
		{"issue update", `{"object_kind":"issue","user":{"username":"jo"},"object_attributes":{"title":"x","action":"update"}}`},
		{"push hook", `{"object_kind":"push"}`},
		{"orphan note", `{"object_kind":"note","user":{"username":"jo"},"object_attributes":{"note":"x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Normalize([]byte(tt.body), http.Header{})
			if !errors.Is(err, domain.ErrUnsupportedEvent) {
				t.Errorf("expected ErrUnsupportedEvent, got %v", err)
			}
		})
	}
}
