package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Event type constants for WebSocket messages.
const (
	EventApprovalRequested = "approval.requested"
	EventApprovalResolved  = "approval.resolved"
	EventMessageDropped    = "message.dropped"
	EventDispatchResult    = "dispatch.result"
)

// ApprovalRequestedEvent is broadcast when a command enters the
// pending-approval state.
type ApprovalRequestedEvent struct {
	ApprovalID string    `json:"approval_id"`
	Source     string    `json:"source"`
	Requester  string    `json:"requester"`
	Text       string    `json:"text"`
	Action     string    `json:"action_class"`
	TargetKind string    `json:"target_kind"`
	TargetName string    `json:"target_name"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ApprovalResolvedEvent is broadcast when a pending approval reaches a
// terminal state.
type ApprovalResolvedEvent struct {
	ApprovalID string `json:"approval_id"`
	Status     string `json:"status"` // approved | rejected | expired
	ResolvedBy string `json:"resolved_by,omitempty"`
	Note       string `json:"note,omitempty"`
}

// MessageDroppedEvent is broadcast when an inbound delivery is dropped
// before dispatch.
type MessageDroppedEvent struct {
	DeliveryID string `json:"delivery_id"`
	Source     string `json:"source"`
	Reason     string `json:"reason"`
}

// DispatchResultEvent is broadcast when an executor reports a command
// outcome.
type DispatchResultEvent struct {
	DeliveryID string `json:"delivery_id"`
	Status     string `json:"status"` // completed | failed
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// BroadcastEvent is a convenience method that marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(ctx context.Context, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.Broadcast(ctx, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
