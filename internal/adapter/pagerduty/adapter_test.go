package pagerduty

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"testing"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
	"github.com/Strob0t/TriggerGate/internal/secrets"
)

const hookSecret = "pd-signing-secret"

func testSource(t *testing.T) *Source {
	t.Helper()
	vault, err := secrets.NewVault(func() (map[string]string, error) {
		return map[string]string{
			"PD_WEBHOOK_SECRET": hookSecret,
			"PD_API_TOKEN":      "pd-token",
		}, nil
	})
	if err != nil {
		t.Fatal(err)
	}

	s, err := New(trigger.Config{
		Name:      "oncall-pd",
		Type:      "pagerduty",
		SecretEnv: "PD_WEBHOOK_SECRET",
		TokenEnv:  "PD_API_TOKEN",
		Settings:  map[string]string{"from_email": "ops@acme.example"},
	}, vault)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func signWith(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "v1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyMultiCandidate(t *testing.T) {
	s := testSource(t)
	body := []byte(`{"event":{"event_type":"incident.triggered"}}`)

	// Rotation window: an old-secret candidate plus the current one.
	header := http.Header{}
	header.Set("X-PagerDuty-Signature", signWith("retired-secret", body)+","+signWith(hookSecret, body))
	if err := s.Verify(body, header); err != nil {
		t.Fatalf("valid candidate rejected: %v", err)
	}

	header.Set("X-PagerDuty-Signature", signWith("retired-secret", body))
	if err := s.Verify(body, header); !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestNormalizeIncident(t *testing.T) {
	s := testSource(t)

	body := []byte(`{
		"event": {
			"id": "01ABC",
			"event_type": "incident.triggered",
			"agent": {"id": "PUSER1", "type": "user_reference"},
			"data": {
				"id": "PINC42",
				"title": "API latency above threshold",
				"status": "triggered",
				"urgency": "high",
				"service": {"id": "PSVC9", "summary": "payments"}
			}
		}
	}`)

	msg, err := s.Normalize(body, http.Header{})
	if err != nil {
		t.Fatal(err)
	}
	if msg.Channel != "PSVC9" {
		t.Errorf("Channel = %s", msg.Channel)
	}
	if msg.ThreadID != "PINC42" {
		t.Errorf("ThreadID = %s", msg.ThreadID)
	}
	if msg.Text != "incident PINC42 triggered: API latency above threshold" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.Meta("urgency") != "high" {
		t.Errorf("urgency meta = %q", msg.Meta("urgency"))
	}
	if msg.DeliveryKey() != "pagerduty:01ABC" {
		t.Errorf("DeliveryKey = %s", msg.DeliveryKey())
	}
}

func TestNormalizeUnsupported(t *testing.T) {
	s := testSource(t)

	tests := []struct {
		name string
		body string
	}{
		{"resolved", `{"event":{"id":"1","event_type":"incident.resolved","data":{"id":"P1","title":"x"}}}`},
		{"acknowledged", `{"event":{"id":"2","event_type":"incident.acknowledged","data":{"id":"P1","title":"x"}}}`},
		{"missing data", `{"event":{"id":"3","event_type":"incident.triggered"}}`},
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
