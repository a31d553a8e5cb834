// Package secrets provides a thread-safe secret vault with hot reload.
// Configuration records never embed credentials; they reference secrets
// by environment-variable name and the vault resolves the reference at
// wiring time.
package secrets

import (
	"fmt"
	"strings"
	"sync"
)

// Loader retrieves secrets from a source (env vars, file, remote vault).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate
// initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Resolve returns the secret named by ref, failing loudly when the
// reference is set but the secret is absent. An empty ref resolves to
// an empty value (the source simply has no secret configured).
func (v *Vault) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	val := v.Get(ref)
	if val == "" {
		return "", fmt.Errorf("secrets: %s is referenced but not set", ref)
	}
	return val, nil
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}

// Keys returns the names of all loaded secrets.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	keys := make([]string, 0, len(v.values))
	for k := range v.values {
		keys = append(keys, k)
	}
	return keys
}

// Redacted returns a masked form of the secret for key, safe for logs.
func (v *Vault) Redacted(key string) string {
	val := v.Get(key)
	return mask(val)
}

// RedactString replaces every known secret value occurring in s with
// its masked form. Used before echoing executor output to a channel.
func (v *Vault) RedactString(s string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, val := range v.values {
		if len(val) >= 4 && strings.Contains(s, val) {
			s = strings.ReplaceAll(s, val, mask(val))
		}
	}
	return s
}

func mask(val string) string {
	switch {
	case val == "":
		return ""
	case len(val) <= 4:
		return "****"
	default:
		return val[:2] + "****"
	}
}
