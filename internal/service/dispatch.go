package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"

	"github.com/Strob0t/TriggerGate/internal/adapter/otel"
	"github.com/Strob0t/TriggerGate/internal/adapter/ws"
	"github.com/Strob0t/TriggerGate/internal/config"
	"github.com/Strob0t/TriggerGate/internal/port/messagequeue"
	"github.com/Strob0t/TriggerGate/internal/resilience"
	"github.com/Strob0t/TriggerGate/internal/secrets"
)

// Replier delivers text back to a channel on a source. Satisfied by
// *Gateway.
type Replier interface {
	Reply(ctx context.Context, sourceType, channel, threadID, text string) error
}

// Dispatcher publishes authorized commands to the executor queue. It
// bounds in-flight dispatches with a weighted semaphore, applies a
// per-dispatch timeout independent of any approval timeout, and wraps
// the publish in a circuit breaker. Failed dispatches are surfaced to
// the origin channel by the caller, never retried here.
type Dispatcher struct {
	queue   messagequeue.Queue
	sem     *semaphore.Weighted
	breaker *resilience.Breaker
	timeout time.Duration
	vault   *secrets.Vault
	hub     Broadcaster
	metrics *otel.Metrics
}

// NewDispatcher creates a Dispatcher. vault, hub, and metrics may be nil.
func NewDispatcher(queue messagequeue.Queue, cfg config.Dispatch, breaker *resilience.Breaker, vault *secrets.Vault, hub Broadcaster, metrics *otel.Metrics) *Dispatcher {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Dispatcher{
		queue:   queue,
		sem:     semaphore.NewWeighted(maxConcurrent),
		breaker: breaker,
		timeout: timeout,
		vault:   vault,
		hub:     hub,
		metrics: metrics,
	}
}

// Dispatch publishes one command to dispatch.{kind}.{name}.
func (d *Dispatcher) Dispatch(ctx context.Context, p messagequeue.DispatchPayload) error {
	start := time.Now()
	ctx, span := otel.StartDispatchSpan(ctx, p.TargetKind, p.TargetName)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("service: dispatch %s: acquire slot: %w", p.DeliveryID, err)
	}
	defer d.sem.Release(1)

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("service: dispatch %s: marshal: %w", p.DeliveryID, err)
	}

	subject := messagequeue.DispatchSubject(p.TargetKind, p.TargetName)
	err = d.breaker.Execute(func() error {
		return d.queue.Publish(ctx, subject, data)
	})
	if err != nil {
		return fmt.Errorf("service: dispatch %s to %s: %w", p.DeliveryID, subject, err)
	}

	if d.metrics != nil {
		d.metrics.MessagesDispatched.Add(ctx, 1,
			metric.WithAttributes(attribute.String("target.kind", p.TargetKind)))
		d.metrics.DispatchDuration.Record(ctx, time.Since(start).Seconds())
	}

	slog.Info("command dispatched",
		"delivery_id", p.DeliveryID,
		"subject", subject,
		"action", p.ActionClass,
	)
	return nil
}

// Cancel publishes a cancellation for an in-flight dispatch.
func (d *Dispatcher) Cancel(ctx context.Context, deliveryID, reason string) error {
	data, err := json.Marshal(messagequeue.CancelPayload{DeliveryID: deliveryID, Reason: reason})
	if err != nil {
		return fmt.Errorf("service: cancel %s: marshal: %w", deliveryID, err)
	}
	if err := d.queue.Publish(ctx, messagequeue.SubjectCancel, data); err != nil {
		return fmt.Errorf("service: cancel %s: %w", deliveryID, err)
	}
	return nil
}

// SubscribeResults starts relaying executor results back to the
// channel each command originated from. The returned function cancels
// the subscription.
func (d *Dispatcher) SubscribeResults(ctx context.Context, replier Replier) (func(), error) {
	return d.queue.Subscribe(ctx, messagequeue.SubjectResult, func(ctx context.Context, _ string, data []byte) error {
		var res messagequeue.ResultPayload
		if err := json.Unmarshal(data, &res); err != nil {
			return fmt.Errorf("service: decode result: %w", err)
		}

		text := d.formatResult(res)
		if err := replier.Reply(ctx, res.Source, res.Channel, res.ThreadID, text); err != nil {
			// The result was consumed; losing the relay is logged, not retried.
			slog.Warn("result relay failed",
				"delivery_id", res.DeliveryID,
				"source", res.Source,
				"channel", res.Channel,
				"error", err,
			)
		}

		if d.hub != nil {
			d.hub.BroadcastEvent(ctx, ws.EventDispatchResult, ws.DispatchResultEvent{
				DeliveryID: res.DeliveryID,
				Status:     res.Status,
				Error:      res.Error,
				DurationMS: res.DurationMS,
			})
		}
		return nil
	})
}

// formatResult renders an executor result for the origin channel.
// Executor output may quote configuration it was handed, so every known
// secret value is redacted before the text leaves the gateway.
func (d *Dispatcher) formatResult(res messagequeue.ResultPayload) string {
	var text string
	switch {
	case res.Status == "failed":
		text = "command failed"
		if res.Error != "" {
			text += ": " + res.Error
		}
	case res.Output != "":
		text = res.Output
	default:
		text = "command completed"
	}
	if d.vault != nil {
		text = d.vault.RedactString(text)
	}
	return text
}
