// Package service contains application services: the inbound gateway
// pipeline, the pending approval registry, and the dispatcher.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Strob0t/TriggerGate/internal/adapter/ws"
	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/approval"
)

// Broadcaster pushes typed events to connected operator consoles.
// Satisfied by *ws.Hub.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType string, payload any)
}

// Archiver persists terminal approval requests. Satisfied by
// *postgres.AuditStore.
type Archiver interface {
	ArchiveApproval(ctx context.Context, r *approval.Request) error
}

// Approvals is the in-memory registry of pending approval requests.
// Every mutation funnels through one guarded check-and-set, so the
// expiry timer and a concurrent decision race safely: whichever takes
// the request terminal first wins and the loser is a no-op.
type Approvals struct {
	mu      sync.Mutex
	pending map[string]*approval.Request
	timers  map[string]*time.Timer

	archiver Archiver
	hub      Broadcaster
	now      func() time.Time

	// onResolved runs after a request reaches a terminal state, outside
	// the registry lock. The gateway hooks dispatch and channel
	// notification here.
	onResolved func(ctx context.Context, r *approval.Request)
}

// NewApprovals creates an empty registry. archiver and hub may be nil.
func NewApprovals(archiver Archiver, hub Broadcaster) *Approvals {
	return &Approvals{
		pending:  make(map[string]*approval.Request),
		timers:   make(map[string]*time.Timer),
		archiver: archiver,
		hub:      hub,
		now:      time.Now,
	}
}

// SetResolvedHook registers the callback invoked when a request turns
// terminal. Must be called before the first Create.
func (a *Approvals) SetResolvedHook(fn func(ctx context.Context, r *approval.Request)) {
	a.onResolved = fn
}

// Create registers a pending request and arms its expiry timer.
func (a *Approvals) Create(ctx context.Context, r *approval.Request) {
	a.mu.Lock()
	a.pending[r.ID] = r
	a.timers[r.ID] = time.AfterFunc(time.Until(r.ExpiresAt), func() {
		a.expire(r.ID)
	})
	a.mu.Unlock()

	slog.Info("approval requested",
		"approval_id", r.ID,
		"requester", r.Requester,
		"action", r.Action,
		"target", string(r.Target.Kind)+":"+r.Target.Name,
		"expires_at", r.ExpiresAt,
	)

	if a.hub != nil {
		a.hub.BroadcastEvent(ctx, ws.EventApprovalRequested, ws.ApprovalRequestedEvent{
			ApprovalID: r.ID,
			Source:     r.Message.Source,
			Requester:  r.Requester,
			Text:       r.Message.Text,
			Action:     string(r.Action),
			TargetKind: string(r.Target.Kind),
			TargetName: r.Target.Name,
			ExpiresAt:  r.ExpiresAt,
		})
	}
}

// Get returns the pending request with the given ID.
func (a *Approvals) Get(id string) (*approval.Request, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.pending[id]
	if !ok {
		return nil, fmt.Errorf("service: approval %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

// List returns all pending requests.
func (a *Approvals) List() []*approval.Request {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]*approval.Request, 0, len(a.pending))
	for _, r := range a.pending {
		out = append(out, r)
	}
	return out
}

// Len returns the number of pending requests.
func (a *Approvals) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Decide applies an approve or reject decision from the given identity.
// It returns the request (terminal or not) so callers can report quorum
// progress. Unauthorized identities and disallowed self-approval get
// domain.ErrNotPermitted with no state change; decisions on unknown IDs
// get domain.ErrNotFound.
func (a *Approvals) Decide(ctx context.Context, id, identity, decision, note string) (*approval.Request, error) {
	a.mu.Lock()
	r, ok := a.pending[id]
	if !ok {
		a.mu.Unlock()
		return nil, fmt.Errorf("service: approval %s: %w", id, domain.ErrNotFound)
	}

	var terminal bool
	var err error
	switch decision {
	case "approve":
		terminal, err = r.Approve(identity, a.now())
	case "reject":
		err = r.Reject(identity, a.now())
		terminal = err == nil
	default:
		a.mu.Unlock()
		return nil, fmt.Errorf("service: approval %s: unknown decision %q: %w", id, decision, domain.ErrValidation)
	}
	if err != nil {
		a.mu.Unlock()
		return r, fmt.Errorf("service: approval %s: %w", id, err)
	}
	if !terminal {
		a.mu.Unlock()
		return r, nil
	}

	if note != "" {
		r.FinalNote = note
	}
	a.removeLocked(id)
	a.mu.Unlock()

	a.finalize(ctx, r)
	return r, nil
}

// expire runs from the per-request timer. A request already taken
// terminal by a decision is left alone.
func (a *Approvals) expire(id string) {
	a.mu.Lock()
	r, ok := a.pending[id]
	if !ok {
		a.mu.Unlock()
		return
	}
	if err := r.Expire(a.now()); err != nil {
		a.mu.Unlock()
		return
	}
	a.removeLocked(id)
	a.mu.Unlock()

	slog.Info("approval expired", "approval_id", id, "requester", r.Requester)
	a.finalize(context.Background(), r)
}

// removeLocked drops the request and its timer. Caller holds a.mu.
func (a *Approvals) removeLocked(id string) {
	if t, ok := a.timers[id]; ok {
		t.Stop()
		delete(a.timers, id)
	}
	delete(a.pending, id)
}

// finalize archives a terminal request, announces it, and invokes the
// resolution hook. Runs outside the registry lock: the request is
// already removed, so no other goroutine can touch it.
func (a *Approvals) finalize(ctx context.Context, r *approval.Request) {
	if a.archiver != nil {
		if err := a.archiver.ArchiveApproval(ctx, r); err != nil {
			slog.Error("approval archive failed", "approval_id", r.ID, "error", err)
		}
	}
	if a.hub != nil {
		a.hub.BroadcastEvent(ctx, ws.EventApprovalResolved, ws.ApprovalResolvedEvent{
			ApprovalID: r.ID,
			Status:     string(r.Status),
			ResolvedBy: r.ResolvedBy,
			Note:       r.FinalNote,
		})
	}
	if a.onResolved != nil {
		a.onResolved(ctx, r)
	}
}
