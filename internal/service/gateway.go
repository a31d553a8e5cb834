package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Strob0t/TriggerGate/internal/adapter/otel"
	"github.com/Strob0t/TriggerGate/internal/adapter/ws"
	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/approval"
	"github.com/Strob0t/TriggerGate/internal/domain/message"
	"github.com/Strob0t/TriggerGate/internal/domain/policy"
	"github.com/Strob0t/TriggerGate/internal/domain/routing"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
	"github.com/Strob0t/TriggerGate/internal/middleware"
	"github.com/Strob0t/TriggerGate/internal/port/audit"
	"github.com/Strob0t/TriggerGate/internal/port/cache"
	"github.com/Strob0t/TriggerGate/internal/port/executor"
	"github.com/Strob0t/TriggerGate/internal/port/messagequeue"
	"github.com/Strob0t/TriggerGate/internal/port/source"
	"github.com/Strob0t/TriggerGate/internal/secrets"
)

// Gateway runs the inbound pipeline: verify, de-duplicate, normalize,
// route, classify, evaluate, then dispatch, suspend behind an approval,
// or block. Every decision lands in the audit trail.
type Gateway struct {
	adapters map[string]source.Adapter // by trigger name
	bySource map[string]source.Adapter // by source type, for replies
	table    *routing.Table
	dedup    cache.Cache
	dedupTTL time.Duration
	limits   *middleware.KeyedLimiter
	sink     audit.Sink
	sinks    map[string]audit.Sink // named sinks selectable per context
	approver *Approvals
	exec     executor.Executor
	hub      Broadcaster
	metrics  *otel.Metrics
	now      func() time.Time
}

// NewGateway constructs one adapter per trigger record through the
// source registry and hooks approval resolution back into dispatch.
// dedup, sink, hub, and metrics may be nil.
func NewGateway(
	triggers []trigger.Config,
	table *routing.Table,
	vault *secrets.Vault,
	dedup cache.Cache,
	dedupTTL time.Duration,
	sink audit.Sink,
	approver *Approvals,
	exec executor.Executor,
	hub Broadcaster,
	metrics *otel.Metrics,
) (*Gateway, error) {
	g := &Gateway{
		adapters: make(map[string]source.Adapter, len(triggers)),
		bySource: make(map[string]source.Adapter),
		table:    table,
		dedup:    dedup,
		dedupTTL: dedupTTL,
		limits:   middleware.NewKeyedLimiter(),
		sink:     sink,
		sinks:    make(map[string]audit.Sink),
		approver: approver,
		exec:     exec,
		hub:      hub,
		metrics:  metrics,
		now:      time.Now,
	}

	for _, cfg := range triggers {
		adapter, err := source.New(cfg, vault)
		if err != nil {
			return nil, fmt.Errorf("service: trigger %s: %w", cfg.Name, err)
		}
		g.adapters[cfg.Name] = adapter
		if _, ok := g.bySource[adapter.Type()]; !ok {
			g.bySource[adapter.Type()] = adapter
		}
	}

	if approver != nil {
		approver.SetResolvedHook(g.onApprovalResolved)
	}
	return g, nil
}

// RegisterAuditSink makes a named sink selectable through a context's
// audit_sink field. Contexts naming no sink, or an unknown one, record
// to the default sink.
func (g *Gateway) RegisterAuditSink(name string, s audit.Sink) {
	g.sinks[name] = s
}

// Adapter returns the adapter serving the named trigger.
func (g *Gateway) Adapter(triggerName string) (source.Adapter, bool) {
	a, ok := g.adapters[triggerName]
	return a, ok
}

// HandleInbound processes one delivery for the named trigger. A nil
// return means the delivery was consumed, whatever the decision; the
// HTTP layer answers with the fixed minimal acknowledgement. The only
// errors surfaced are unknown trigger, failed verification, and
// unparseable payloads.
func (g *Gateway) HandleInbound(ctx context.Context, triggerName string, body []byte, header http.Header) error {
	adapter, ok := g.adapters[triggerName]
	if !ok {
		return fmt.Errorf("service: trigger %s: %w", triggerName, domain.ErrNotFound)
	}

	start := g.now()
	ctx, span := otel.StartIngestSpan(ctx, adapter.Type(), "")
	defer span.End()

	if err := adapter.Verify(body, header); err != nil {
		slog.Warn("signature verification failed", "trigger", triggerName, "source", adapter.Type())
		if g.metrics != nil {
			g.metrics.SignatureFailures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("message.source", adapter.Type())))
		}
		return fmt.Errorf("service: trigger %s: %w", triggerName, domain.ErrInvalidSignature)
	}

	msg, err := adapter.Normalize(body, header)
	if err != nil {
		if errors.Is(err, domain.ErrUnsupportedEvent) {
			slog.Debug("unsupported event dropped", "trigger", triggerName)
			return nil
		}
		return fmt.Errorf("service: trigger %s: %w", triggerName, err)
	}

	if g.metrics != nil {
		g.metrics.MessagesReceived.Add(ctx, 1,
			metric.WithAttributes(attribute.String("message.source", msg.Source)))
		defer func() {
			g.metrics.IngestDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	if dup, err := g.seenBefore(ctx, msg); err == nil && dup {
		g.drop(ctx, msg, "duplicate delivery")
		return nil
	}

	if verb, id, ok := parseDecisionCommand(msg.Text); ok {
		g.handleChatDecision(ctx, adapter, msg, verb, id)
		return nil
	}

	match, ok := g.table.Route(msg, triggerName)
	if !ok {
		g.drop(ctx, msg, domain.ErrNoRoute.Error())
		return nil
	}

	if !g.limits.Allow(match.Context.Name, match.Context.Limits.RequestsPerSecond, match.Context.Limits.Burst) {
		g.drop(ctx, msg, "rate limit exceeded for context "+match.Context.Name)
		return nil
	}

	class := policy.Classify(msg.Text)
	decision := policy.Evaluate(msg.Source, class, match.Context)
	if decision.Outcome == policy.OutcomeAllow {
		switch {
		case match.Context.Approval.Required:
			decision = policy.RequireApproval("context "+match.Context.Name+" requires approval for every command", match.Context.Approval.Timeout)
		case match.Context.ForcesApproval(msg.Text):
			decision = policy.RequireApproval("command matches a force-approval pattern", match.Context.Approval.Timeout)
		}
	}
	if g.metrics != nil {
		g.metrics.PolicyDecisions.Add(ctx, 1,
			metric.WithAttributes(attribute.String("policy.outcome", string(decision.Outcome))))
	}

	switch decision.Outcome {
	case policy.OutcomeAllow:
		g.dispatch(ctx, adapter, msg, match, class, "")
	case policy.OutcomeRequireApproval:
		g.suspend(ctx, adapter, msg, match, class, decision)
	case policy.OutcomeBlock:
		g.block(ctx, adapter, msg, match, class, decision)
	}
	return nil
}

// Reply sends text back to a channel on the named source type.
func (g *Gateway) Reply(ctx context.Context, sourceType, channel, threadID, text string) error {
	adapter, ok := g.bySource[sourceType]
	if !ok {
		return fmt.Errorf("service: reply: no adapter for source %s: %w", sourceType, domain.ErrNotFound)
	}
	return adapter.SendMessage(ctx, channel, threadID, text)
}

// seenBefore records the delivery key and reports whether it was
// already present. With no cache configured every delivery is new.
func (g *Gateway) seenBefore(ctx context.Context, msg *message.Message) (bool, error) {
	if g.dedup == nil {
		return false, nil
	}
	key := msg.DeliveryKey()
	if _, found, err := g.dedup.Get(ctx, key); err != nil {
		return false, err
	} else if found {
		return true, nil
	}
	if err := g.dedup.Set(ctx, key, []byte{'1'}, g.dedupTTL); err != nil {
		slog.Warn("dedup record failed", "key", key, "error", err)
	}
	return false, nil
}

// dispatch hands an authorized command to the executor and surfaces a
// failure to the origin channel.
func (g *Gateway) dispatch(ctx context.Context, adapter source.Adapter, msg *message.Message, match *routing.Match, class policy.ActionClass, approvalID string) {
	reason := match.Reason
	if approvalID != "" {
		reason = "approved"
	}
	g.record(ctx, msg, match, class, "allow", reason, approvalID)

	if err := g.exec.Dispatch(ctx, buildPayload(msg, match, class, approvalID)); err != nil {
		slog.Error("dispatch failed", "delivery_id", msg.DeliveryKey(), "error", err)
		g.notify(ctx, adapter, msg, "dispatch failed, nothing was executed: "+err.Error())
	}
}

// suspend parks the command behind a pending approval and tells the
// channel how to resolve it.
func (g *Gateway) suspend(ctx context.Context, adapter source.Adapter, msg *message.Message, match *routing.Match, class policy.ActionClass, decision policy.Decision) {
	req := approval.New(uuid.NewString(), msg, class, match.Target,
		match.Context.Approval, match.Context.Name, decision.Reason, g.now(), decision.Timeout)
	g.approver.Create(ctx, req)
	g.record(ctx, msg, match, class, "approve", decision.Reason, req.ID)

	g.notify(ctx, adapter, msg, fmt.Sprintf(
		"approval required: %s\nreply `approve %s` or `reject %s` (expires in %s)",
		decision.Reason, req.ID, req.ID, decision.Timeout.Round(time.Second)))
}

// block rejects the command and explains the alternative.
func (g *Gateway) block(ctx context.Context, adapter source.Adapter, msg *message.Message, match *routing.Match, class policy.ActionClass, decision policy.Decision) {
	g.record(ctx, msg, match, class, "block", decision.Reason, "")

	text := "blocked: " + decision.Reason
	if decision.Suggestion != "" {
		text += "\n" + decision.Suggestion
	}
	g.notify(ctx, adapter, msg, text)
}

// drop records a delivery that dies before reaching the policy engine.
func (g *Gateway) drop(ctx context.Context, msg *message.Message, reason string) {
	slog.Debug("message dropped", "delivery_id", msg.DeliveryKey(), "reason", reason)
	g.record(ctx, msg, nil, "", "drop", reason, "")

	if g.metrics != nil {
		g.metrics.MessagesDropped.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("message.source", msg.Source),
				attribute.String("drop.reason", reason),
			))
	}
	if g.hub != nil {
		g.hub.BroadcastEvent(ctx, ws.EventMessageDropped, ws.MessageDroppedEvent{
			DeliveryID: msg.DeliveryKey(),
			Source:     msg.Source,
			Reason:     reason,
		})
	}
}

// handleChatDecision resolves `approve <id>` / `reject <id>` arriving
// from any verified source. The outcome is reported back to the channel
// the decision came from.
func (g *Gateway) handleChatDecision(ctx context.Context, adapter source.Adapter, msg *message.Message, verb, id string) {
	req, err := g.approver.Decide(ctx, id, msg.User.ID, verb, "via "+msg.Source)
	switch {
	case err == nil && req.Status.Terminal():
		g.notify(ctx, adapter, msg, fmt.Sprintf("approval %s %s", id, req.Status))
	case err == nil:
		g.notify(ctx, adapter, msg, fmt.Sprintf(
			"approval %s recorded (%d of %d)", id, req.ApprovalCount(), req.MinApprovals))
	case errors.Is(err, domain.ErrNotFound):
		g.notify(ctx, adapter, msg, "no pending approval "+id)
	case errors.Is(err, domain.ErrNotPermitted):
		g.notify(ctx, adapter, msg, "you are not permitted to decide approval "+id)
	case errors.Is(err, domain.ErrTerminal):
		g.notify(ctx, adapter, msg, "approval "+id+" is already resolved")
	default:
		slog.Error("chat decision failed", "approval_id", id, "error", err)
		g.notify(ctx, adapter, msg, "could not record the decision for approval "+id)
	}
}

// onApprovalResolved runs when a pending request turns terminal:
// approved commands dispatch, everything else is reported back as a
// rejection.
func (g *Gateway) onApprovalResolved(ctx context.Context, req *approval.Request) {
	if g.metrics != nil {
		g.metrics.ApprovalsResolved.Add(ctx, 1,
			metric.WithAttributes(attribute.String("approval.state", string(req.Status))))
	}

	msg := req.Message
	adapter, ok := g.bySource[msg.Source]
	if !ok {
		slog.Error("approval resolved for unknown source", "approval_id", req.ID, "source", msg.Source)
		return
	}

	switch req.Status {
	case approval.StatusApproved:
		execCtx, ok := g.table.Contexts[req.Context]
		if !ok {
			execCtx = &trigger.ExecContext{Name: req.Context}
		}
		match := &routing.Match{Target: req.Target, Context: execCtx}
		g.notify(ctx, adapter, msg, fmt.Sprintf("approved by %s, dispatching", req.ResolvedBy))
		g.dispatch(ctx, adapter, msg, match, req.Action, req.ID)
	case approval.StatusRejected:
		g.notify(ctx, adapter, msg, fmt.Sprintf("rejected by %s, nothing was executed", req.ResolvedBy))
	case approval.StatusExpired:
		g.notify(ctx, adapter, msg, approval.ReasonExpired+", nothing was executed")
	}
}

// notify replies on the message's channel; delivery failures are
// logged, never propagated into the decision path.
func (g *Gateway) notify(ctx context.Context, adapter source.Adapter, msg *message.Message, text string) {
	if err := adapter.SendMessage(ctx, msg.Channel, msg.ThreadID, text); err != nil {
		slog.Warn("channel notification failed",
			"source", msg.Source,
			"channel", msg.Channel,
			"error", err,
		)
	}
}

// record writes one audit entry, to the context's named sink when it
// declares one. match may be nil for pre-routing drops.
func (g *Gateway) record(ctx context.Context, msg *message.Message, match *routing.Match, class policy.ActionClass, outcome, reason, approvalID string) {
	sink := g.sink
	if match != nil && match.Context != nil && match.Context.AuditSink != "" {
		if s, ok := g.sinks[match.Context.AuditSink]; ok {
			sink = s
		} else {
			slog.Warn("unknown audit sink, recording to default", "sink", match.Context.AuditSink, "context", match.Context.Name)
		}
	}
	if sink == nil {
		return
	}
	e := audit.Entry{
		Time:        g.now(),
		DeliveryID:  msg.DeliveryKey(),
		Source:      msg.Source,
		Channel:     msg.Channel,
		UserID:      msg.User.ID,
		Text:        msg.Text,
		ActionClass: string(class),
		Outcome:     outcome,
		Reason:      reason,
		ApprovalID:  approvalID,
	}
	if match != nil {
		e.TargetKind = string(match.Target.Kind)
		e.TargetName = match.Target.Name
		if match.Context != nil {
			e.Context = match.Context.Name
		}
	}
	if err := sink.Record(ctx, e); err != nil {
		slog.Error("audit record failed", "delivery_id", e.DeliveryID, "error", err)
	}
}

// buildPayload assembles the dispatch envelope for a routed command.
func buildPayload(msg *message.Message, match *routing.Match, class policy.ActionClass, approvalID string) messagequeue.DispatchPayload {
	return messagequeue.DispatchPayload{
		DeliveryID:  msg.DeliveryKey(),
		Source:      msg.Source,
		Channel:     msg.Channel,
		ThreadID:    msg.ThreadID,
		UserID:      msg.User.ID,
		Username:    msg.User.Username,
		Text:        msg.Text,
		TargetKind:  string(match.Target.Kind),
		TargetName:  match.Target.Name,
		Context:     match.Context.Name,
		ActionClass: string(class),
		ApprovalID:  approvalID,
		Metadata:    msg.Metadata,
	}
}

// parseDecisionCommand recognizes `approve <id>` and `reject <id>`.
func parseDecisionCommand(text string) (verb, id string, ok bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) != 2 {
		return "", "", false
	}
	verb = strings.ToLower(fields[0])
	if verb != "approve" && verb != "reject" {
		return "", "", false
	}
	return verb, fields[1], true
}
