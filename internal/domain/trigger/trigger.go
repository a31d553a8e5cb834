// Package trigger defines the declarative routing configuration:
// source triggers, binding rules, and execution contexts. Records are
// loaded at startup, immutable during a routing decision, and looked up
// by name.
package trigger

import (
	"fmt"
	"strings"
)

// TargetKind identifies what a message is dispatched to.
type TargetKind string

const (
	TargetWorker   TargetKind = "worker"
	TargetGroup    TargetKind = "group"
	TargetWorkflow TargetKind = "workflow"
)

// TargetRef references an automation target by kind and name.
type TargetRef struct {
	Kind TargetKind `json:"kind" yaml:"kind"`
	Name string     `json:"name" yaml:"name"`
}

// ParseTargetRef parses "worker:triage" style references. A bare name
// with no kind prefix defaults to a worker.
func ParseTargetRef(s string) (TargetRef, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TargetRef{}, fmt.Errorf("trigger: empty target reference")
	}

	kind, name, found := strings.Cut(s, ":")
	if !found {
		return TargetRef{Kind: TargetWorker, Name: s}, nil
	}

	switch TargetKind(kind) {
	case TargetWorker, TargetGroup, TargetWorkflow:
		if name == "" {
			return TargetRef{}, fmt.Errorf("trigger: target %q has no name", s)
		}
		return TargetRef{Kind: TargetKind(kind), Name: name}, nil
	default:
		return TargetRef{}, fmt.Errorf("trigger: unknown target kind %q", kind)
	}
}

// String renders the reference in "kind:name" form.
func (t TargetRef) String() string {
	return string(t.Kind) + ":" + t.Name
}

// IsZero reports whether the reference is unset.
func (t TargetRef) IsZero() bool {
	return t.Name == ""
}

// Filters restrict which messages a trigger accepts. An empty list
// matches anything for that field.
type Filters struct {
	Channels []string `json:"channels,omitempty" yaml:"channels,omitempty"`
	Users    []string `json:"users,omitempty" yaml:"users,omitempty"`
	Events   []string `json:"events,omitempty" yaml:"events,omitempty"`
}

// Config identifies a configured source: its type, authentication
// references, filters, command map, and optional default target.
// Secrets are referenced by environment-variable name, never inlined.
type Config struct {
	Name    string  `json:"name" yaml:"name"`
	Type    string  `json:"type" yaml:"type"`
	Context string  `json:"context,omitempty" yaml:"context,omitempty"`
	Filters Filters `json:"filters,omitempty" yaml:"filters,omitempty"`

	// SecretEnv names the environment variable holding this source's
	// signing secret, verification key, or static token; TokenEnv names
	// the outbound API credential used to send replies.
	SecretEnv string `json:"secret_env,omitempty" yaml:"secret_env,omitempty"`
	TokenEnv  string `json:"token_env,omitempty" yaml:"token_env,omitempty"`

	// Settings carries source-specific plain configuration such as a
	// schedule expression or a reply endpoint URL.
	Settings map[string]string `json:"settings,omitempty" yaml:"settings,omitempty"`

	// Commands maps an exact command string to a target. An exact match
	// bypasses binding scoring entirely.
	Commands map[string]string `json:"commands,omitempty" yaml:"commands,omitempty"`

	// DefaultTarget receives free-text messages no binding matched.
	DefaultTarget string `json:"default_target,omitempty" yaml:"default_target,omitempty"`
}

// MatchesFilters reports whether the channel, user, and event satisfy
// every configured restriction. Unrestricted fields match anything.
func (c *Config) MatchesFilters(channel, userID, event string) bool {
	if len(c.Filters.Channels) > 0 && !contains(c.Filters.Channels, channel) {
		return false
	}
	if len(c.Filters.Users) > 0 && !contains(c.Filters.Users, userID) {
		return false
	}
	if len(c.Filters.Events) > 0 && event != "" && !contains(c.Filters.Events, event) {
		return false
	}
	return true
}

// CommandTarget resolves an exact command match against the command
// map. The command is the first whitespace-delimited word of the text.
func (c *Config) CommandTarget(text string) (TargetRef, bool) {
	if len(c.Commands) == 0 {
		return TargetRef{}, false
	}
	cmd := strings.TrimSpace(text)
	if i := strings.IndexAny(cmd, " \t\n"); i >= 0 {
		cmd = cmd[:i]
	}
	raw, ok := c.Commands[cmd]
	if !ok {
		return TargetRef{}, false
	}
	ref, err := ParseTargetRef(raw)
	if err != nil {
		return TargetRef{}, false
	}
	return ref, true
}

// Validate checks that a trigger record is well-formed.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("trigger: name is required")
	}
	if c.Type == "" {
		return fmt.Errorf("trigger: %s: type is required", c.Name)
	}
	for cmd, target := range c.Commands {
		if cmd == "" {
			return fmt.Errorf("trigger: %s: empty command string", c.Name)
		}
		if _, err := ParseTargetRef(target); err != nil {
			return fmt.Errorf("trigger: %s: command %q: %w", c.Name, cmd, err)
		}
	}
	if c.DefaultTarget != "" {
		if _, err := ParseTargetRef(c.DefaultTarget); err != nil {
			return fmt.Errorf("trigger: %s: default target: %w", c.Name, err)
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
