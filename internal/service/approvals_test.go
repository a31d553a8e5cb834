package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/TriggerGate/internal/domain"
	"github.com/Strob0t/TriggerGate/internal/domain/approval"
	"github.com/Strob0t/TriggerGate/internal/domain/policy"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
)

type memArchiver struct {
	mu       sync.Mutex
	archived []*approval.Request
	err      error
}

func (a *memArchiver) ArchiveApproval(ctx context.Context, r *approval.Request) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, r)
	return a.err
}

func (a *memArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.archived)
}

func newRequest(minApprovals int, timeout time.Duration) *approval.Request {
	pol := trigger.ApprovalPolicy{
		Approvers:    []string{"U-LEAD", "U-OPS"},
		MinApprovals: minApprovals,
	}
	return approval.New(uuid.NewString(), testMessage("evt-1", "U-DEV", "deploy api"),
		policy.ClassWrite, trigger.TargetRef{Kind: trigger.TargetWorker, Name: "deployer"},
		pol, "staging", "write action requires approval", time.Now(), timeout)
}

func TestApprovalsGetUnknown(t *testing.T) {
	a := NewApprovals(nil, nil)
	if _, err := a.Get("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestApprovalsCreateAndGet(t *testing.T) {
	a := NewApprovals(nil, nil)
	r := newRequest(1, time.Minute)
	a.Create(context.Background(), r)

	got, err := a.Get(r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != r.ID || a.Len() != 1 {
		t.Errorf("got %s, registry size %d", got.ID, a.Len())
	}
}

func TestDecideQuorum(t *testing.T) {
	archiver := &memArchiver{}
	a := NewApprovals(archiver, nil)

	var resolved []*approval.Request
	a.SetResolvedHook(func(ctx context.Context, r *approval.Request) {
		resolved = append(resolved, r)
	})

	r := newRequest(2, time.Minute)
	a.Create(context.Background(), r)

	first, err := a.Decide(context.Background(), r.ID, "U-LEAD", "approve", "")
	if err != nil {
		t.Fatal(err)
	}
	if first.Status.Terminal() {
		t.Fatal("single approval reached a two-person quorum")
	}
	if first.ApprovalCount() != 1 {
		t.Errorf("approval count = %d, want 1", first.ApprovalCount())
	}
	if len(resolved) != 0 || archiver.count() != 0 {
		t.Error("non-terminal request was finalized")
	}

	second, err := a.Decide(context.Background(), r.ID, "U-OPS", "approve", "shipping it")
	if err != nil {
		t.Fatal(err)
	}
	if second.Status != approval.StatusApproved || second.ResolvedBy != "U-OPS" {
		t.Errorf("request = %+v", second)
	}
	if second.FinalNote != "shipping it" {
		t.Errorf("note = %q", second.FinalNote)
	}
	if a.Len() != 0 {
		t.Error("terminal request still in the registry")
	}
	if len(resolved) != 1 || archiver.count() != 1 {
		t.Errorf("resolved hook ran %d times, archived %d", len(resolved), archiver.count())
	}
}

func TestDecideConcurrentDuplicateIdentity(t *testing.T) {
	a := NewApprovals(nil, nil)

	var mu sync.Mutex
	resolved := 0
	a.SetResolvedHook(func(ctx context.Context, r *approval.Request) {
		mu.Lock()
		resolved++
		mu.Unlock()
	})

	r := newRequest(2, time.Minute)
	a.Create(context.Background(), r)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.Decide(context.Background(), r.ID, "U-LEAD", "approve", "")
		}()
	}
	wg.Wait()

	got, err := a.Get(r.ID)
	if err != nil {
		t.Fatalf("request left the registry: %v", err)
	}
	if got.Status != approval.StatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if got.ApprovalCount() != 1 {
		t.Errorf("approval count = %d, want 1 for a single identity", got.ApprovalCount())
	}
	mu.Lock()
	defer mu.Unlock()
	if resolved != 0 {
		t.Errorf("resolved hook ran %d times, want 0", resolved)
	}
}

func TestDecideReject(t *testing.T) {
	a := NewApprovals(nil, nil)
	r := newRequest(2, time.Minute)
	a.Create(context.Background(), r)

	got, err := a.Decide(context.Background(), r.ID, "U-OPS", "reject", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != approval.StatusRejected {
		t.Errorf("status = %s, want rejected with no quorum", got.Status)
	}
	if a.Len() != 0 {
		t.Error("rejected request still pending")
	}
}

func TestDecideNotPermitted(t *testing.T) {
	a := NewApprovals(nil, nil)
	r := newRequest(1, time.Minute)
	a.Create(context.Background(), r)

	if _, err := a.Decide(context.Background(), r.ID, "U-STRANGER", "approve", ""); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("error = %v, want ErrNotPermitted", err)
	}
	if a.Len() != 1 {
		t.Error("unpermitted decision removed the request")
	}
}

func TestDecideSelfApprovalDenied(t *testing.T) {
	a := NewApprovals(nil, nil)
	pol := trigger.ApprovalPolicy{MinApprovals: 1} // no approver list, anyone but the requester
	r := approval.New(uuid.NewString(), testMessage("evt-2", "U-DEV", "deploy api"),
		policy.ClassWrite, trigger.TargetRef{Kind: trigger.TargetWorker, Name: "deployer"},
		pol, "staging", "", time.Now(), time.Minute)
	a.Create(context.Background(), r)

	if _, err := a.Decide(context.Background(), r.ID, "U-DEV", "approve", ""); !errors.Is(err, domain.ErrNotPermitted) {
		t.Fatalf("error = %v, want ErrNotPermitted for self-approval", err)
	}
}

func TestDecideUnknownVerb(t *testing.T) {
	a := NewApprovals(nil, nil)
	r := newRequest(1, time.Minute)
	a.Create(context.Background(), r)

	if _, err := a.Decide(context.Background(), r.ID, "U-LEAD", "shrug", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

func TestDecideAfterResolution(t *testing.T) {
	a := NewApprovals(nil, nil)
	r := newRequest(1, time.Minute)
	a.Create(context.Background(), r)

	if _, err := a.Decide(context.Background(), r.ID, "U-LEAD", "approve", ""); err != nil {
		t.Fatal(err)
	}
	// Terminal requests leave the registry, so a late decision reads as unknown.
	if _, err := a.Decide(context.Background(), r.ID, "U-OPS", "reject", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestExpiry(t *testing.T) {
	archiver := &memArchiver{}
	a := NewApprovals(archiver, nil)

	done := make(chan *approval.Request, 1)
	a.SetResolvedHook(func(ctx context.Context, r *approval.Request) {
		done <- r
	})

	r := newRequest(1, 20*time.Millisecond)
	a.Create(context.Background(), r)

	select {
	case got := <-done:
		if got.Status != approval.StatusExpired {
			t.Errorf("status = %s, want expired", got.Status)
		}
		if got.FinalNote != approval.ReasonExpired {
			t.Errorf("note = %q, want %q", got.FinalNote, approval.ReasonExpired)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expiry timer never fired")
	}

	if a.Len() != 0 {
		t.Error("expired request still in the registry")
	}
	if archiver.count() != 1 {
		t.Errorf("archived %d requests, want 1", archiver.count())
	}
}

func TestDecisionBeatsExpiry(t *testing.T) {
	a := NewApprovals(nil, nil)

	var mu sync.Mutex
	var statuses []approval.Status
	a.SetResolvedHook(func(ctx context.Context, r *approval.Request) {
		mu.Lock()
		statuses = append(statuses, r.Status)
		mu.Unlock()
	})

	r := newRequest(1, 30*time.Millisecond)
	a.Create(context.Background(), r)

	if _, err := a.Decide(context.Background(), r.ID, "U-LEAD", "approve", ""); err != nil {
		t.Fatal(err)
	}
	time.Sleep(60 * time.Millisecond) // let a stale timer fire if the stop raced

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 1 || statuses[0] != approval.StatusApproved {
		t.Errorf("resolutions = %v, want exactly one approved", statuses)
	}
}

func TestArchiveFailureDoesNotBlockResolution(t *testing.T) {
	archiver := &memArchiver{err: errors.New("database is down")}
	a := NewApprovals(archiver, nil)
	r := newRequest(1, time.Minute)
	a.Create(context.Background(), r)

	got, err := a.Decide(context.Background(), r.ID, "U-LEAD", "approve", "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != approval.StatusApproved || a.Len() != 0 {
		t.Error("archive failure leaked into the decision path")
	}
}
