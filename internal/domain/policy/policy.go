// Package policy classifies requested actions and evaluates them
// against per-source policy tables. Classification is a pure lexical
// function of the command text; evaluation never fails open: an action
// class absent from every list is blocked.
package policy

import "time"

// ActionClass is the safety classification of a requested operation.
type ActionClass string

const (
	ClassRead      ActionClass = "read"
	ClassWrite     ActionClass = "write"
	ClassDelete    ActionClass = "delete"
	ClassDangerous ActionClass = "dangerous"
)

// Outcome is the kind of policy decision.
type Outcome string

const (
	OutcomeAllow           Outcome = "allow"
	OutcomeRequireApproval Outcome = "require_approval"
	OutcomeBlock           Outcome = "block"
)

// Decision is the result of evaluating an action class against a
// source policy. Computed fresh per request; never persisted.
type Decision struct {
	Outcome    Outcome       `json:"outcome"`
	Reason     string        `json:"reason,omitempty"`
	Suggestion string        `json:"suggestion,omitempty"` // for blocks: an alternative channel
	Timeout    time.Duration `json:"timeout,omitempty"`    // for approvals
}

// Allow is the decision permitting immediate dispatch.
func Allow() Decision {
	return Decision{Outcome: OutcomeAllow}
}

// RequireApproval is the decision suspending dispatch behind a human
// approval with the given timeout.
func RequireApproval(reason string, timeout time.Duration) Decision {
	return Decision{Outcome: OutcomeRequireApproval, Reason: reason, Timeout: timeout}
}

// Block is the decision rejecting the request with an explanation and
// a suggested alternative.
func Block(reason, suggestion string) Decision {
	return Decision{Outcome: OutcomeBlock, Reason: reason, Suggestion: suggestion}
}

// SourcePolicy lists which action classes a source may execute, which
// require approval, and which are blocked.
type SourcePolicy struct {
	Blocked  []ActionClass `json:"blocked" yaml:"blocked"`
	Approval []ActionClass `json:"approval" yaml:"approval"`
	Allowed  []ActionClass `json:"allowed" yaml:"allowed"`
}

func (p SourcePolicy) contains(list []ActionClass, c ActionClass) bool {
	for _, item := range list {
		if item == c {
			return true
		}
	}
	return false
}

// IsValidClass reports whether c is one of the four action classes.
func IsValidClass(c ActionClass) bool {
	switch c {
	case ClassRead, ClassWrite, ClassDelete, ClassDangerous:
		return true
	}
	return false
}
