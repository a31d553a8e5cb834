// Package audit defines the decision audit port. Every policy decision
// the gateway takes is recorded as an Entry, whatever its outcome.
package audit

import (
	"context"
	"time"
)

// Entry is one audit record: the event that arrived, the decision the
// gateway took, and where the command was (or would have been) sent.
type Entry struct {
	ID          string    `json:"id"`
	Time        time.Time `json:"time"`
	DeliveryID  string    `json:"delivery_id"`
	Source      string    `json:"source"`
	Channel     string    `json:"channel"`
	UserID      string    `json:"user_id"`
	Text        string    `json:"text"`
	ActionClass string    `json:"action_class"`
	Outcome     string    `json:"outcome"` // allow | approve | block | drop
	Reason      string    `json:"reason"`
	TargetKind  string    `json:"target_kind,omitempty"`
	TargetName  string    `json:"target_name,omitempty"`
	Context     string    `json:"context,omitempty"`
	ApprovalID  string    `json:"approval_id,omitempty"`
}

// Filter narrows a List query. Zero values match everything.
type Filter struct {
	Source  string
	Outcome string
	Since   time.Time
	Limit   int
}

// Sink persists audit entries. Implementations must tolerate bursts;
// recording must never block the decision path for long.
type Sink interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
	Close()
}
