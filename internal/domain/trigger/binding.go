package trigger

import (
	"fmt"
	"regexp"
	"strings"
)

// Binding associates a trigger, an execution context, and a target with
// additional match constraints. Multiple bindings may reference the
// same trigger; the router selects at most one per message.
type Binding struct {
	Trigger string `json:"trigger" yaml:"trigger"`
	Context string `json:"context,omitempty" yaml:"context,omitempty"`
	Target  string `json:"target" yaml:"target"`

	Pattern         string   `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	RequireKeywords []string `json:"require_keywords,omitempty" yaml:"require_keywords,omitempty"`
	ExcludeKeywords []string `json:"exclude_keywords,omitempty" yaml:"exclude_keywords,omitempty"`
	Priority        int      `json:"priority,omitempty" yaml:"priority,omitempty"`

	// Order is the declaration index within the configuration set. It
	// is assigned at load time and breaks score ties deterministically
	// (first declared wins).
	Order int `json:"-" yaml:"-"`

	compiled *regexp.Regexp
}

// Compile validates and caches the binding's regex pattern. Must be
// called at load time; Matches panics on an uncompiled pattern only if
// Compile was skipped.
func (b *Binding) Compile() error {
	if b.Pattern == "" {
		return nil
	}
	re, err := regexp.Compile(b.Pattern)
	if err != nil {
		return fmt.Errorf("trigger: binding %s: pattern: %w", b.Trigger, err)
	}
	b.compiled = re
	return nil
}

// MatchesPattern reports whether the binding's regex matches the text.
// A binding with no pattern matches.
func (b *Binding) MatchesPattern(text string) bool {
	if b.Pattern == "" {
		return true
	}
	if b.compiled == nil {
		if err := b.Compile(); err != nil {
			return false
		}
	}
	return b.compiled.MatchString(text)
}

// MatchesKeywords reports whether every required keyword appears in the
// text and no excluded keyword does. Matching is case-insensitive.
func (b *Binding) MatchesKeywords(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range b.RequireKeywords {
		if !strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	for _, kw := range b.ExcludeKeywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return false
		}
	}
	return true
}

// Validate checks that a binding record is well-formed.
func (b *Binding) Validate() error {
	if b.Trigger == "" {
		return fmt.Errorf("trigger: binding has no trigger reference")
	}
	if b.Target == "" {
		return fmt.Errorf("trigger: binding %s: target is required", b.Trigger)
	}
	if _, err := ParseTargetRef(b.Target); err != nil {
		return fmt.Errorf("trigger: binding %s: %w", b.Trigger, err)
	}
	if err := b.Compile(); err != nil {
		return err
	}
	return nil
}
