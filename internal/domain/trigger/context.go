package trigger

import (
	"fmt"
	"regexp"
	"time"
)

// Default values applied to execution contexts at load time.
const (
	DefaultApprovalTimeout = 30 * time.Minute
	DefaultMinApprovals    = 1
)

// ApprovalPolicy configures human approval for a context.
type ApprovalPolicy struct {
	Required          bool          `json:"required,omitempty" yaml:"required,omitempty"`
	Approvers         []string      `json:"approvers,omitempty" yaml:"approvers,omitempty"`
	Timeout           time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MinApprovals      int           `json:"min_approvals,omitempty" yaml:"min_approvals,omitempty"`
	AllowSelfApproval bool          `json:"allow_self_approval,omitempty" yaml:"allow_self_approval,omitempty"`

	// ForcePatterns lists command regexes that require approval even
	// when the policy engine would otherwise allow the action.
	ForcePatterns []string `json:"force_patterns,omitempty" yaml:"force_patterns,omitempty"`

	forceCompiled []*regexp.Regexp
}

// PolicyLists is a per-source policy override: which action classes are
// blocked, require approval, or are allowed. Classes absent from every
// list are blocked.
type PolicyLists struct {
	Blocked  []string `json:"blocked,omitempty" yaml:"blocked,omitempty"`
	Approval []string `json:"approval,omitempty" yaml:"approval,omitempty"`
	Allowed  []string `json:"allowed,omitempty" yaml:"allowed,omitempty"`
}

// RateLimits bounds inbound traffic for sources bound to this context.
type RateLimits struct {
	RequestsPerSecond float64 `json:"requests_per_second,omitempty" yaml:"requests_per_second,omitempty"`
	Burst             int     `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// ExecContext is environment-scoped configuration referenced by
// bindings: approval policy, per-source policy overrides, and limits.
// It is shared between bindings and never owned by a single message.
type ExecContext struct {
	Name            string                 `json:"name" yaml:"name"`
	Approval        ApprovalPolicy         `json:"approval,omitempty" yaml:"approval,omitempty"`
	PolicyOverrides map[string]PolicyLists `json:"policy_overrides,omitempty" yaml:"policy_overrides,omitempty"`
	Limits          RateLimits             `json:"limits,omitempty" yaml:"limits,omitempty"`
	AuditSink       string                 `json:"audit_sink,omitempty" yaml:"audit_sink,omitempty"`
}

// ApplyDefaults fills unset approval fields with the documented
// defaults: 30 minute timeout, one approver, self-approval disallowed.
func (c *ExecContext) ApplyDefaults() {
	if c.Approval.Timeout <= 0 {
		c.Approval.Timeout = DefaultApprovalTimeout
	}
	if c.Approval.MinApprovals <= 0 {
		c.Approval.MinApprovals = DefaultMinApprovals
	}
}

// ForcesApproval reports whether the command text matches any
// force-approval pattern.
func (c *ExecContext) ForcesApproval(text string) bool {
	if len(c.Approval.ForcePatterns) == 0 {
		return false
	}
	if c.Approval.forceCompiled == nil {
		if err := c.compileForcePatterns(); err != nil {
			return false
		}
	}
	for _, re := range c.Approval.forceCompiled {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func (c *ExecContext) compileForcePatterns() error {
	compiled := make([]*regexp.Regexp, 0, len(c.Approval.ForcePatterns))
	for _, p := range c.Approval.ForcePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return fmt.Errorf("trigger: context %s: force pattern %q: %w", c.Name, p, err)
		}
		compiled = append(compiled, re)
	}
	c.Approval.forceCompiled = compiled
	return nil
}

// Validate checks that a context record is well-formed and compiles
// its force patterns.
func (c *ExecContext) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("trigger: context name is required")
	}
	if c.Approval.MinApprovals < 0 {
		return fmt.Errorf("trigger: context %s: min_approvals must be >= 0", c.Name)
	}
	if c.Approval.Timeout < 0 {
		return fmt.Errorf("trigger: context %s: timeout must be >= 0", c.Name)
	}
	return c.compileForcePatterns()
}
