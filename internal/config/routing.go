package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/TriggerGate/internal/domain/routing"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
)

// Routing is the declarative routing configuration: one record per
// source trigger, per binding, and per execution context. Loaded once
// at startup; immutable afterwards.
type Routing struct {
	Triggers []trigger.Config      `yaml:"triggers"`
	Bindings []trigger.Binding     `yaml:"bindings"`
	Contexts []trigger.ExecContext `yaml:"contexts"`
}

// LoadRouting reads routing records from the given YAML file, validates
// them, assigns binding declaration order, and applies documented
// defaults to every context. Unlike the service config, a missing
// routing file is an error: a gateway with no triggers routes nothing.
func LoadRouting(path string) (*Routing, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("routing: read %s: %w", path, err)
	}

	var r Routing
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("routing: parse %s: %w", path, err)
	}

	if err := r.Finalize(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Finalize validates all records, wires declaration order into the
// bindings, and applies context defaults. Exposed so tests can build
// routing sets in memory.
func (r *Routing) Finalize() error {
	if len(r.Triggers) == 0 {
		return errors.New("routing: at least one trigger is required")
	}

	names := make(map[string]struct{}, len(r.Triggers))
	for i := range r.Triggers {
		t := &r.Triggers[i]
		if err := t.Validate(); err != nil {
			return fmt.Errorf("routing: %w", err)
		}
		if _, dup := names[t.Name]; dup {
			return fmt.Errorf("routing: duplicate trigger name %q", t.Name)
		}
		names[t.Name] = struct{}{}
	}

	ctxNames := make(map[string]struct{}, len(r.Contexts))
	for i := range r.Contexts {
		c := &r.Contexts[i]
		if err := c.Validate(); err != nil {
			return fmt.Errorf("routing: %w", err)
		}
		if _, dup := ctxNames[c.Name]; dup {
			return fmt.Errorf("routing: duplicate context name %q", c.Name)
		}
		ctxNames[c.Name] = struct{}{}
		c.ApplyDefaults()
	}

	for i := range r.Bindings {
		b := &r.Bindings[i]
		b.Order = i
		if err := b.Validate(); err != nil {
			return fmt.Errorf("routing: %w", err)
		}
		if _, ok := names[b.Trigger]; !ok {
			return fmt.Errorf("routing: binding %d references unknown trigger %q", i, b.Trigger)
		}
		if b.Context != "" {
			if _, ok := ctxNames[b.Context]; !ok {
				return fmt.Errorf("routing: binding %d references unknown context %q", i, b.Context)
			}
		}
	}

	for i := range r.Triggers {
		t := &r.Triggers[i]
		if t.Context != "" {
			if _, ok := ctxNames[t.Context]; !ok {
				return fmt.Errorf("routing: trigger %s references unknown context %q", t.Name, t.Context)
			}
		}
	}

	return nil
}

// Table builds the immutable routing table from the loaded records,
// compiling every binding pattern up front so routing decisions never
// pay a compile on the hot path.
func (r *Routing) Table() (*routing.Table, error) {
	t := &routing.Table{
		Triggers: make(map[string]*trigger.Config, len(r.Triggers)),
		Bindings: make([]trigger.Binding, len(r.Bindings)),
		Contexts: make(map[string]*trigger.ExecContext, len(r.Contexts)),
	}
	for i := range r.Triggers {
		t.Triggers[r.Triggers[i].Name] = &r.Triggers[i]
	}
	copy(t.Bindings, r.Bindings)
	for i := range t.Bindings {
		if err := t.Bindings[i].Compile(); err != nil {
			return nil, fmt.Errorf("routing: %w", err)
		}
	}
	for i := range r.Contexts {
		t.Contexts[r.Contexts[i].Name] = &r.Contexts[i]
	}
	return t, nil
}

// SecretRefs returns every environment-variable name referenced by the
// trigger records, for seeding the secret vault.
func (r *Routing) SecretRefs() []string {
	seen := make(map[string]struct{})
	var refs []string
	add := func(ref string) {
		if ref == "" {
			return
		}
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	for i := range r.Triggers {
		add(r.Triggers[i].SecretEnv)
		add(r.Triggers[i].TokenEnv)
	}
	return refs
}
