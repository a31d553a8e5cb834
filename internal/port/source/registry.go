package source

import (
	"fmt"
	"sync"

	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
	"github.com/Strob0t/TriggerGate/internal/secrets"
)

var (
	mu        sync.RWMutex
	factories = make(map[string]Factory)
)

// Register makes a source adapter factory available by type name.
// It is typically called from an init() function in the adapter package.
func Register(sourceType string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := factories[sourceType]; exists {
		panic(fmt.Sprintf("source: duplicate registration for %q", sourceType))
	}
	factories[sourceType] = factory
}

// New creates an adapter for the trigger's source type using the
// registered factory.
func New(cfg trigger.Config, vault *secrets.Vault) (Adapter, error) {
	mu.RLock()
	factory, ok := factories[cfg.Type]
	mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("source: unknown source type %q", cfg.Type)
	}
	return factory(cfg, vault)
}

// Available returns the registered source type names.
func Available() []string {
	mu.RLock()
	defer mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
