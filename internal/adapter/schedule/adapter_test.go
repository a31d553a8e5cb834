package schedule

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/schedule"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
)

func testSource(t *testing.T, settings map[string]string) *Source {
	t.Helper()
	s, err := New(trigger.Config{
		Name:     "nightly-backup",
		Type:     "schedule",
		Settings: settings,
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]string
		errMsg   string
	}{
		{
			name:     "missing every",
			settings: map[string]string{"command": "backup run"},
			errMsg:   "settings.every is required",
		},
		{
			name:     "missing command",
			settings: map[string]string{"every": "every:10m"},
			errMsg:   "settings.command is required",
		},
		{
			name:     "bad expression",
			settings: map[string]string{"every": "sometimes", "command": "x"},
			errMsg:   "schedule",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(trigger.Config{Name: "bad", Type: "schedule", Settings: tt.settings})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

func TestNormalizeTick(t *testing.T) {
	s := testSource(t, map[string]string{
		"every":   "daily:03:00",
		"command": "backup run --all",
		"channel": "ops",
	})

	body := []byte(`{"seq":3,"command":"backup run --all","channel":"ops","at":"2026-09-01T03:00:00Z"}`)
	msg, err := s.Normalize(body, http.Header{})
	if err != nil {
		t.Fatal(err)
	}
	if msg.ID != "nightly-backup-3" {
		t.Errorf("ID = %s", msg.ID)
	}
	if msg.User.ID != SchedulerUser {
		t.Errorf("User.ID = %s", msg.User.ID)
	}
	if msg.Text != "backup run --all" {
		t.Errorf("Text = %q", msg.Text)
	}
	if msg.Meta("scheduled_at") != "2026-09-01T03:00:00Z" {
		t.Errorf("scheduled_at meta = %q", msg.Meta("scheduled_at"))
	}
}

func TestNormalizeEmptyCommand(t *testing.T) {
	s := testSource(t, map[string]string{"every": "every:10m", "command": "x"})
	if _, err := s.Normalize([]byte(`{"seq":1}`), http.Header{}); !errors.Is(err, domain.ErrUnsupportedEvent) {
		t.Errorf("expected ErrUnsupportedEvent, got %v", err)
	}
}

func TestVerifyAlwaysOK(t *testing.T) {
	s := testSource(t, map[string]string{"every": "every:10m", "command": "x"})
	if err := s.Verify(nil, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestRunEmitsAndStops(t *testing.T) {
	s := &Source{
		name:    "poller",
		spec:    schedule.Spec{Every: 10 * time.Millisecond},
		command: "poll queue",
		now:     time.Now,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		seen  int
		first []byte
	)
	done := make(chan struct{})
	go func() {
		s.Run(ctx, func(_ context.Context, body []byte) {
			mu.Lock()
			seen++
			if first == nil {
				first = body
			}
			n := seen
			mu.Unlock()
			if n >= 2 {
				cancel()
			}
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}

	mu.Lock()
	defer mu.Unlock()
	if seen < 2 {
		t.Fatalf("expected at least 2 ticks, got %d", seen)
	}
	if !strings.Contains(string(first), `"command":"poll queue"`) {
		t.Errorf("unexpected tick payload %s", first)
	}
}
