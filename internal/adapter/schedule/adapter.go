// Package schedule implements the internal timer source: triggers of
// type "schedule" inject synthesized command messages on a recurring
// schedule instead of receiving webhooks. There is no HTTP surface and
// nothing to verify; the payloads originate inside the process.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/message"
	"github.com/Strob0t/TriggerGate/internal/domain/routing"
	"github.com/Strob0t/TriggerGate/internal/domain/schedule"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
	"github.com/Strob0t/TriggerGate/internal/port/source"
	"github.com/Strob0t/TriggerGate/internal/secrets"
)

const sourceType = "schedule"

// SchedulerUser identifies the synthetic author of scheduled commands
// in filters and audit entries.
const SchedulerUser = "scheduler"

// tickPayload is the internally generated body handed to Normalize.
type tickPayload struct {
	Seq     int64  `json:"seq"`
	Command string `json:"command"`
	Channel string `json:"channel"`
	At      string `json:"at"`
}

// Source is the schedule adapter for one configured trigger. Settings:
// "every" (a schedule expression: "every:10m", "daily:03:00",
// "weekly:mon:09:00"), "command" (the text to inject), and optional
// "channel".
type Source struct {
	name    string
	spec    schedule.Spec
	command string
	channel string
	now     func() time.Time
}

func init() {
	source.Register(sourceType, func(cfg trigger.Config, _ *secrets.Vault) (source.Adapter, error) {
		return New(cfg)
	})
}

// New creates a schedule source from the trigger record.
func New(cfg trigger.Config) (*Source, error) {
	expr := cfg.Settings["every"]
	if expr == "" {
		return nil, fmt.Errorf("schedule: trigger %s: settings.every is required", cfg.Name)
	}
	spec, err := schedule.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: trigger %s: %w", cfg.Name, err)
	}
	command := strings.TrimSpace(cfg.Settings["command"])
	if command == "" {
		return nil, fmt.Errorf("schedule: trigger %s: settings.command is required", cfg.Name)
	}
	return &Source{
		name:    cfg.Name,
		spec:    spec,
		command: command,
		channel: cfg.Settings["channel"],
		now:     time.Now,
	}, nil
}

func (s *Source) Type() string { return sourceType }

// Verify always succeeds: ticks never cross a network boundary.
func (s *Source) Verify(_ []byte, _ http.Header) error { return nil }

// Normalize decodes a tick payload produced by Run.
func (s *Source) Normalize(body []byte, _ http.Header) (*message.Message, error) {
	var p tickPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("schedule: decode tick: %w", domain.ErrParse)
	}
	if p.Command == "" {
		return nil, domain.ErrUnsupportedEvent
	}

	msg := &message.Message{
		ID:        s.name + "-" + strconv.FormatInt(p.Seq, 10),
		Source:    sourceType,
		Channel:   p.Channel,
		User:      message.User{ID: SchedulerUser, Username: SchedulerUser},
		Text:      p.Command,
		Timestamp: s.now(),
	}
	msg.SetMeta(routing.MetaEvent, "tick")
	msg.SetMeta("scheduled_at", p.At)
	return msg, nil
}

// SendMessage logs the reply; a timer has no channel to answer on.
func (s *Source) SendMessage(_ context.Context, _, _, text string) error {
	slog.Info("schedule reply", "trigger", s.name, "text", text)
	return nil
}

// Run emits a tick payload at every scheduled instant until the
// context is cancelled. emit receives the raw body to feed through the
// normal inbound pipeline.
func (s *Source) Run(ctx context.Context, emit func(ctx context.Context, body []byte)) {
	var seq int64
	for {
		next := s.spec.NextAfter(s.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		seq++
		body, err := json.Marshal(tickPayload{
			Seq:     seq,
			Command: s.command,
			Channel: s.channel,
			At:      next.UTC().Format(time.RFC3339),
		})
		if err != nil {
			slog.Error("schedule tick marshal failed", "trigger", s.name, "error", err)
			continue
		}
		emit(ctx, body)
	}
}

// Next reports the next firing instant, for health and admin output.
func (s *Source) Next() time.Time {
	return s.spec.NextAfter(s.now())
}
