// Package approval models the lifecycle of a pending human approval
// gating a dispatch. A request transitions exactly once from pending to
// approved, rejected, or expired; callers must serialize mutation (the
// service layer funnels every transition through one guarded resolve
// operation).
package approval

import (
	"time"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/message"
	"github.com/Strob0t/TriggerGate/internal/domain/policy"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
)

// Status of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// Terminal reports whether s is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusExpired
}

// ReasonExpired is the audit reason distinguishing a timeout from an
// explicit rejection. Both are reported to dispatch as rejections.
const ReasonExpired = "approval timed out"

// Request tracks one pending approval.
type Request struct {
	ID      string             `json:"id"`
	Message *message.Message   `json:"message"`
	Action  policy.ActionClass `json:"action"`
	Target  trigger.TargetRef  `json:"target"`
	Context string             `json:"context,omitempty"`
	Reason  string             `json:"reason,omitempty"`

	// Approvers is the explicit allow-list of deciding identities; an
	// empty list means unrestricted.
	Approvers    []string `json:"approvers,omitempty"`
	MinApprovals int      `json:"min_approvals"`
	AllowSelf    bool     `json:"allow_self"`
	Requester    string   `json:"requester"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`

	Status     Status    `json:"status"`
	ResolvedAt time.Time `json:"resolved_at,omitempty"`
	ResolvedBy string    `json:"resolved_by,omitempty"`
	FinalNote  string    `json:"final_note,omitempty"`

	// approvals records which identities have approved so far, so a
	// duplicate approval from one identity counts once toward quorum.
	approvals map[string]struct{}
}

// New creates a pending request. The approver policy comes from the
// resolved execution context; defaults are assumed already applied.
func New(id string, msg *message.Message, action policy.ActionClass, target trigger.TargetRef, pol trigger.ApprovalPolicy, ctxName, reason string, now time.Time, timeout time.Duration) *Request {
	return &Request{
		ID:           id,
		Message:      msg,
		Action:       action,
		Target:       target,
		Context:      ctxName,
		Reason:       reason,
		Approvers:    pol.Approvers,
		MinApprovals: pol.MinApprovals,
		AllowSelf:    pol.AllowSelfApproval,
		Requester:    msg.User.ID,
		CreatedAt:    now,
		ExpiresAt:    now.Add(timeout),
		Status:       StatusPending,
		approvals:    make(map[string]struct{}),
	}
}

// permitted reports whether identity may decide this request.
func (r *Request) permitted(identity string) bool {
	if len(r.Approvers) == 0 {
		return true
	}
	for _, a := range r.Approvers {
		if a == identity {
			return true
		}
	}
	return false
}

// Approve records an approve decision. Returns true when the quorum is
// reached and the request transitions to approved. Unauthorized
// identities and (unless enabled) the original requester get
// domain.ErrNotPermitted with no state change; duplicate approvals from
// one identity are no-ops counted once.
func (r *Request) Approve(identity string, now time.Time) (bool, error) {
	if r.Status.Terminal() {
		return false, domain.ErrTerminal
	}
	if !r.permitted(identity) {
		return false, domain.ErrNotPermitted
	}
	if identity == r.Requester && !r.AllowSelf {
		return false, domain.ErrNotPermitted
	}

	r.approvals[identity] = struct{}{}
	if len(r.approvals) < r.MinApprovals {
		return false, nil
	}

	r.Status = StatusApproved
	r.ResolvedAt = now
	r.ResolvedBy = identity
	return true, nil
}

// Reject records a reject decision. A single rejection from any
// permitted identity is immediately terminal; there is no quorum.
func (r *Request) Reject(identity string, now time.Time) error {
	if r.Status.Terminal() {
		return domain.ErrTerminal
	}
	if !r.permitted(identity) {
		return domain.ErrNotPermitted
	}
	if identity == r.Requester && !r.AllowSelf {
		return domain.ErrNotPermitted
	}

	r.Status = StatusRejected
	r.ResolvedAt = now
	r.ResolvedBy = identity
	return nil
}

// Expire transitions a still-pending request to expired. Reported to
// dispatch identically to a rejection, but distinguished in the audit
// trail by ReasonExpired.
func (r *Request) Expire(now time.Time) error {
	if r.Status.Terminal() {
		return domain.ErrTerminal
	}
	r.Status = StatusExpired
	r.ResolvedAt = now
	r.FinalNote = ReasonExpired
	return nil
}

// ApprovalCount returns the number of distinct approving identities.
func (r *Request) ApprovalCount() int {
	return len(r.approvals)
}
