package trigger

import (
	"strings"
	"testing"
	"time"
)

func TestParseTargetRef(t *testing.T) {
	tests := []struct {
		in      string
		want    TargetRef
		wantErr string
	}{
		{in: "worker:triage", want: TargetRef{Kind: TargetWorker, Name: "triage"}},
		{in: "group:oncall", want: TargetRef{Kind: TargetGroup, Name: "oncall"}},
		{in: "workflow:release", want: TargetRef{Kind: TargetWorkflow, Name: "release"}},
		{in: "triage", want: TargetRef{Kind: TargetWorker, Name: "triage"}},
		{in: "", wantErr: "empty target"},
		{in: "robot:x", wantErr: "unknown target kind"},
		{in: "worker:", wantErr: "has no name"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTargetRef(tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestMatchesFilters(t *testing.T) {
	cfg := Config{
		Name: "ops-slack",
		Type: "slack",
		Filters: Filters{
			Channels: []string{"C01OPS"},
			Users:    []string{"U1", "U2"},
		},
	}

	if !cfg.MatchesFilters("C01OPS", "U1", "message") {
		t.Error("expected restricted match to pass")
	}
	if cfg.MatchesFilters("C99", "U1", "message") {
		t.Error("expected wrong channel to fail")
	}
	if cfg.MatchesFilters("C01OPS", "U9", "message") {
		t.Error("expected unlisted user to fail")
	}

	open := Config{Name: "any", Type: "webhook"}
	if !open.MatchesFilters("anything", "anyone", "any-event") {
		t.Error("unrestricted trigger must match anything")
	}
}

func TestCommandTarget(t *testing.T) {
	cfg := Config{
		Name: "ops",
		Type: "slack",
		Commands: map[string]string{
			"deploy": "workflow:release",
			"status": "worker:status",
		},
	}

	ref, ok := cfg.CommandTarget("deploy api to staging")
	if !ok || ref.Kind != TargetWorkflow || ref.Name != "release" {
		t.Fatalf("got %v ok=%v", ref, ok)
	}
	if _, ok := cfg.CommandTarget("restart api"); ok {
		t.Error("unconfigured command must not match")
	}
	if _, ok := cfg.CommandTarget(""); ok {
		t.Error("empty text must not match")
	}
}

func TestBindingKeywords(t *testing.T) {
	b := Binding{
		Trigger:         "ops",
		Target:          "worker:deployer",
		RequireKeywords: []string{"deploy", "prod"},
		ExcludeKeywords: []string{"dry-run"},
	}

	if !b.MatchesKeywords("please Deploy to PROD now") {
		t.Error("case-insensitive required keywords should match")
	}
	if b.MatchesKeywords("deploy to staging") {
		t.Error("missing required keyword should fail")
	}
	if b.MatchesKeywords("deploy prod dry-run") {
		t.Error("excluded keyword should fail")
	}
}

func TestBindingPattern(t *testing.T) {
	b := Binding{Trigger: "ops", Target: "worker:x", Pattern: `(?i)^deploy\s+\w+`}
	if err := b.Compile(); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if !b.MatchesPattern("Deploy api") {
		t.Error("pattern should match")
	}
	if b.MatchesPattern("rollback api") {
		t.Error("pattern should not match")
	}

	bad := Binding{Trigger: "ops", Target: "worker:x", Pattern: `([`}
	if err := bad.Validate(); err == nil {
		t.Error("invalid pattern should fail validation")
	}
}

func TestExecContextDefaults(t *testing.T) {
	c := ExecContext{Name: "prod"}
	c.ApplyDefaults()
	if c.Approval.Timeout != 30*time.Minute {
		t.Errorf("timeout default = %v, want 30m", c.Approval.Timeout)
	}
	if c.Approval.MinApprovals != 1 {
		t.Errorf("min approvals default = %d, want 1", c.Approval.MinApprovals)
	}
	if c.Approval.AllowSelfApproval {
		t.Error("self-approval must default to disallowed")
	}

	set := ExecContext{Name: "prod", Approval: ApprovalPolicy{Timeout: 5 * time.Minute, MinApprovals: 2}}
	set.ApplyDefaults()
	if set.Approval.Timeout != 5*time.Minute || set.Approval.MinApprovals != 2 {
		t.Error("explicit values must not be overwritten by defaults")
	}
}

func TestForcesApproval(t *testing.T) {
	c := ExecContext{
		Name: "prod",
		Approval: ApprovalPolicy{
			ForcePatterns: []string{`^deploy\s+prod`, `--force`},
		},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !c.ForcesApproval("deploy prod api") {
		t.Error("force pattern should match")
	}
	if !c.ForcesApproval("git push --force") {
		t.Error("force flag pattern should match")
	}
	if c.ForcesApproval("status api") {
		t.Error("unrelated command should not force approval")
	}
}
