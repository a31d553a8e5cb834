package policy

import (
	"fmt"
	"time"

	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
)

// DefaultApprovalTimeout applies when the execution context does not
// set one.
const DefaultApprovalTimeout = 30 * time.Minute

// Evaluate resolves the effective policy for the source and returns
// the decision for the action class. Resolution order: explicit
// execution-context override, then the built-in per-source default,
// then the fail-secure default table. A class listed nowhere is
// blocked; the engine never fails open.
func Evaluate(source string, class ActionClass, execCtx *trigger.ExecContext) Decision {
	p := effectivePolicy(source, execCtx)

	switch {
	case p.contains(p.Blocked, class):
		return Block(
			fmt.Sprintf("%s actions are blocked on %s", class, source),
			suggestionFor(source),
		)
	case p.contains(p.Approval, class):
		return RequireApproval(
			fmt.Sprintf("%s action on %s requires approval", class, source),
			approvalTimeout(execCtx),
		)
	case p.contains(p.Allowed, class):
		return Allow()
	default:
		return Block(
			fmt.Sprintf("%s actions are not listed in the %s policy", class, source),
			suggestionFor(source),
		)
	}
}

// effectivePolicy looks up the policy table for a source.
func effectivePolicy(source string, execCtx *trigger.ExecContext) SourcePolicy {
	if execCtx != nil {
		if override, ok := execCtx.PolicyOverrides[source]; ok {
			return fromLists(override)
		}
	}
	if preset, ok := sourcePresets[source]; ok {
		return preset
	}
	return FailSecureDefault()
}

func approvalTimeout(execCtx *trigger.ExecContext) time.Duration {
	if execCtx != nil && execCtx.Approval.Timeout > 0 {
		return execCtx.Approval.Timeout
	}
	return DefaultApprovalTimeout
}

// fromLists converts the string-typed configuration lists into a
// SourcePolicy, dropping unknown class names.
func fromLists(l trigger.PolicyLists) SourcePolicy {
	return SourcePolicy{
		Blocked:  toClasses(l.Blocked),
		Approval: toClasses(l.Approval),
		Allowed:  toClasses(l.Allowed),
	}
}

func toClasses(names []string) []ActionClass {
	out := make([]ActionClass, 0, len(names))
	for _, n := range names {
		c := ActionClass(n)
		if IsValidClass(c) {
			out = append(out, c)
		}
	}
	return out
}

func suggestionFor(source string) string {
	return fmt.Sprintf("run the command from an operator console, or bind %s to a context that permits it", source)
}
