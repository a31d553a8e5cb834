package approval

import (
	"errors"
	"testing"
	"time"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/message"
	"github.com/Strob0t/TriggerGate/internal/domain/policy"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newRequest(pol trigger.ApprovalPolicy) *Request {
	if pol.MinApprovals == 0 {
		pol.MinApprovals = 1
	}
	msg := &message.Message{
		ID:     "m1",
		Source: "slack",
		User:   message.User{ID: "U-requester"},
		Text:   "kubectl delete pod x",
	}
	return New("ap-1", msg, policy.ClassDelete,
		trigger.TargetRef{Kind: trigger.TargetWorker, Name: "ops"},
		pol, "prod", "delete requires approval", t0, 5*time.Minute)
}

func TestApproveReachesQuorum(t *testing.T) {
	r := newRequest(trigger.ApprovalPolicy{Approvers: []string{"U1", "U2"}, MinApprovals: 2})

	done, err := r.Approve("U1", t0.Add(time.Minute))
	if err != nil || done {
		t.Fatalf("first approval: done=%v err=%v", done, err)
	}
	if r.Status != StatusPending {
		t.Fatalf("status = %s, want pending before quorum", r.Status)
	}

	done, err = r.Approve("U2", t0.Add(2*time.Minute))
	if err != nil || !done {
		t.Fatalf("second approval: done=%v err=%v", done, err)
	}
	if r.Status != StatusApproved || r.ResolvedBy != "U2" {
		t.Errorf("status = %s by %s, want approved by U2", r.Status, r.ResolvedBy)
	}
}

func TestDuplicateApprovalCountsOnce(t *testing.T) {
	r := newRequest(trigger.ApprovalPolicy{Approvers: []string{"U1", "U2"}, MinApprovals: 2})

	for range 3 {
		done, err := r.Approve("U1", t0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if done {
			t.Fatal("duplicate approvals from one identity must not reach quorum")
		}
	}
	if r.ApprovalCount() != 1 {
		t.Errorf("approval count = %d, want 1", r.ApprovalCount())
	}
}

func TestUnauthorizedDecisionIgnored(t *testing.T) {
	r := newRequest(trigger.ApprovalPolicy{Approvers: []string{"U1"}})

	if _, err := r.Approve("U-intruder", t0); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("expected ErrNotPermitted, got %v", err)
	}
	if err := r.Reject("U-intruder", t0); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("expected ErrNotPermitted, got %v", err)
	}
	if r.Status != StatusPending {
		t.Errorf("status = %s, unauthorized decisions must not change state", r.Status)
	}
}

func TestSelfApprovalDisallowedByDefault(t *testing.T) {
	r := newRequest(trigger.ApprovalPolicy{})

	if _, err := r.Approve("U-requester", t0); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("expected ErrNotPermitted for self-approval, got %v", err)
	}

	enabled := newRequest(trigger.ApprovalPolicy{AllowSelfApproval: true})
	done, err := enabled.Approve("U-requester", t0)
	if err != nil || !done {
		t.Fatalf("self-approval when enabled: done=%v err=%v", done, err)
	}
}

func TestRejectIsImmediate(t *testing.T) {
	r := newRequest(trigger.ApprovalPolicy{Approvers: []string{"U1", "U2"}, MinApprovals: 2})

	if err := r.Reject("U1", t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Status != StatusRejected {
		t.Errorf("status = %s, a single reject is terminal with no quorum", r.Status)
	}
}

func TestNoTransitionOutOfTerminal(t *testing.T) {
	r := newRequest(trigger.ApprovalPolicy{Approvers: []string{"U1"}})
	if err := r.Reject("U1", t0); err != nil {
		t.Fatalf("reject: %v", err)
	}

	if _, err := r.Approve("U1", t0); !errors.Is(err, domain.ErrTerminal) {
		t.Errorf("approve after terminal: %v, want ErrTerminal", err)
	}
	if err := r.Reject("U1", t0); !errors.Is(err, domain.ErrTerminal) {
		t.Errorf("reject after terminal: %v, want ErrTerminal", err)
	}
	if err := r.Expire(t0); !errors.Is(err, domain.ErrTerminal) {
		t.Errorf("expire after terminal: %v, want ErrTerminal", err)
	}
	if r.Status != StatusRejected {
		t.Errorf("status changed after terminal state: %s", r.Status)
	}
}

func TestExpireDistinguishedFromReject(t *testing.T) {
	r := newRequest(trigger.ApprovalPolicy{})

	if err := r.Expire(t0.Add(5 * time.Minute)); err != nil {
		t.Fatalf("expire: %v", err)
	}
	if r.Status != StatusExpired {
		t.Errorf("status = %s, want expired", r.Status)
	}
	if r.FinalNote != ReasonExpired {
		t.Errorf("note = %q, want %q for the audit trail", r.FinalNote, ReasonExpired)
	}
}

func TestScenarioRejectAfterUnauthorizedReject(t *testing.T) {
	// Spec scenario: a non-permitted reject leaves state pending; a
	// permitted reject then moves it to rejected.
	r := newRequest(trigger.ApprovalPolicy{Approvers: []string{"U-lead"}})

	if err := r.Reject("U-random", t0); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("expected ErrNotPermitted, got %v", err)
	}
	if r.Status != StatusPending {
		t.Fatalf("status = %s, want pending", r.Status)
	}

	if err := r.Reject("U-lead", t0.Add(time.Minute)); err != nil {
		t.Fatalf("permitted reject: %v", err)
	}
	if r.Status != StatusRejected {
		t.Fatalf("status = %s, want rejected", r.Status)
	}
}
