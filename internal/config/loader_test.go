package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 10 {
		t.Errorf("expected max_conns 10, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Dispatch.Timeout != 30*time.Second {
		t.Errorf("expected dispatch timeout 30s, got %v", cfg.Dispatch.Timeout)
	}
	if cfg.Dedup.TTL != time.Hour {
		t.Errorf("expected dedup TTL 1h, got %v", cfg.Dedup.TTL)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
dispatch:
  max_concurrent: 8
logging:
  level: "debug"
  async: true
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Dispatch.MaxConcurrent != 8 {
		t.Errorf("expected max_concurrent 8, got %d", cfg.Dispatch.MaxConcurrent)
	}
	if !cfg.Logging.Async {
		t.Error("expected async logging enabled")
	}
	// Unchanged fields keep defaults
	if cfg.NATS.URL != "nats://localhost:4222" {
		t.Errorf("expected default NATS URL, got %s", cfg.NATS.URL)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("TRIGGERGATE_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("TRIGGERGATE_RATE_RPS", "50")
	t.Setenv("TRIGGERGATE_LOG_LEVEL", "warn")
	t.Setenv("TRIGGERGATE_DISPATCH_TIMEOUT", "1m")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("expected test DSN, got %s", cfg.Postgres.DSN)
	}
	if cfg.Rate.RequestsPerSecond != 50 {
		t.Errorf("expected rps 50, got %v", cfg.Rate.RequestsPerSecond)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Logging.Level)
	}
	if cfg.Dispatch.Timeout != time.Minute {
		t.Errorf("expected dispatch timeout 1m, got %v", cfg.Dispatch.Timeout)
	}
}

func TestValidateRequired(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		errMsg string
	}{
		{
			name:   "empty port",
			modify: func(c *Config) { c.Server.Port = "" },
			errMsg: "server.port is required",
		},
		{
			name:   "empty DSN",
			modify: func(c *Config) { c.Postgres.DSN = "" },
			errMsg: "postgres.dsn is required",
		},
		{
			name:   "empty NATS URL",
			modify: func(c *Config) { c.NATS.URL = "" },
			errMsg: "nats.url is required",
		},
		{
			name:   "zero dispatch concurrency",
			modify: func(c *Config) { c.Dispatch.MaxConcurrent = 0 },
			errMsg: "dispatch.max_concurrent must be >= 1",
		},
		{
			name:   "zero rate burst",
			modify: func(c *Config) { c.Rate.Burst = 0 },
			errMsg: "rate.burst must be >= 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.modify(&cfg)

			err := validate(&cfg)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if err.Error() != tt.errMsg {
				t.Errorf("expected %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}

const routingYAML = `
triggers:
  - name: ops-slack
    type: slack
    context: prod
    secret_env: SLACK_SIGNING_SECRET
    filters:
      channels: [ops]
    commands:
      deploy: "worker:deployer"
  - name: repo-github
    type: github
    secret_env: GITHUB_WEBHOOK_SECRET
    default_target: "workflow:ci-triage"

bindings:
  - trigger: ops-slack
    context: prod
    target: "group:oncall"
    require_keywords: [restart]
  - trigger: ops-slack
    target: "worker:helper"
    pattern: "^help"

contexts:
  - name: prod
    approval:
      required: true
      approvers: [alice, bob]
      min_approvals: 2
`

func TestLoadRouting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routing.yaml")
	if err := os.WriteFile(path, []byte(routingYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := LoadRouting(path)
	if err != nil {
		t.Fatal(err)
	}

	if len(r.Triggers) != 2 {
		t.Fatalf("expected 2 triggers, got %d", len(r.Triggers))
	}
	if r.Bindings[0].Order != 0 || r.Bindings[1].Order != 1 {
		t.Errorf("expected declaration order 0,1, got %d,%d", r.Bindings[0].Order, r.Bindings[1].Order)
	}

	// Context defaults applied on load.
	ctx := r.Contexts[0]
	if ctx.Approval.Timeout != 30*time.Minute {
		t.Errorf("expected default timeout 30m, got %v", ctx.Approval.Timeout)
	}
	if ctx.Approval.MinApprovals != 2 {
		t.Errorf("expected min_approvals 2, got %d", ctx.Approval.MinApprovals)
	}

	refs := r.SecretRefs()
	if len(refs) != 2 {
		t.Fatalf("expected 2 secret refs, got %v", refs)
	}

	table, err := r.Table()
	if err != nil {
		t.Fatal(err)
	}
	if table.Triggers["ops-slack"] == nil {
		t.Error("expected ops-slack in routing table")
	}
	if table.Contexts["prod"] == nil {
		t.Error("expected prod context in routing table")
	}
}

func TestLoadRoutingMissingFile(t *testing.T) {
	if _, err := LoadRouting("/nonexistent/routing.yaml"); err == nil {
		t.Fatal("expected error for missing routing file")
	}
}

func TestRoutingValidation(t *testing.T) {
	base := func() Routing {
		return Routing{
			Triggers: []trigger.Config{
				{Name: "ops-slack", Type: "slack"},
			},
		}
	}

	tests := []struct {
		name   string
		modify func(*Routing)
		errMsg string
	}{
		{
			name:   "no triggers",
			modify: func(r *Routing) { r.Triggers = nil },
			errMsg: "at least one trigger",
		},
		{
			name: "duplicate trigger name",
			modify: func(r *Routing) {
				r.Triggers = append(r.Triggers, trigger.Config{Name: "ops-slack", Type: "github"})
			},
			errMsg: "duplicate trigger name",
		},
		{
			name: "binding references unknown trigger",
			modify: func(r *Routing) {
				r.Bindings = []trigger.Binding{{Trigger: "ghost", Target: "worker:x"}}
			},
			errMsg: "unknown trigger",
		},
		{
			name: "binding references unknown context",
			modify: func(r *Routing) {
				r.Bindings = []trigger.Binding{{Trigger: "ops-slack", Target: "worker:x", Context: "ghost"}}
			},
			errMsg: "unknown context",
		},
		{
			name: "trigger references unknown context",
			modify: func(r *Routing) {
				r.Triggers[0].Context = "ghost"
			},
			errMsg: "unknown context",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base()
			tt.modify(&r)

			err := r.Finalize()
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("expected error containing %q, got %q", tt.errMsg, err.Error())
			}
		})
	}
}
