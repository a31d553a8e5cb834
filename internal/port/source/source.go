// Package source defines the adapter contract every external source
// implements, and an open registry mapping source-type strings to
// constructors so new sources plug in without touching the router or
// the policy engine.
package source

import (
	"context"
	"net/http"

	"github.com/Strob0t/TriggerGate/internal/domain/message"
	"github.com/Strob0t/TriggerGate/internal/domain/trigger"
	"github.com/Strob0t/TriggerGate/internal/secrets"
)

// Adapter is the per-source contract: verify the raw bytes, normalize
// them into the canonical message, and send replies back to a channel.
//
// Verify must run before Normalize; a verification failure is fatal for
// the request and nothing else may execute. Normalize returns
// domain.ErrUnsupportedEvent for payload shapes the gateway does not
// act on; callers drop those silently.
type Adapter interface {
	// Type returns the source type tag ("slack", "github", ...).
	Type() string

	// Verify checks the payload signature against the source's
	// configured scheme. Returns domain.ErrInvalidSignature on any
	// failure, without detail.
	Verify(body []byte, header http.Header) error

	// Normalize decodes the native payload into a canonical message.
	Normalize(body []byte, header http.Header) (*message.Message, error)

	// SendMessage delivers text to a channel on this source,
	// thread-aware where the platform supports threading. threadID may
	// be empty.
	SendMessage(ctx context.Context, channel, threadID, text string) error
}

// Factory constructs an adapter from a trigger record, resolving
// secret references through the vault.
type Factory func(cfg trigger.Config, vault *secrets.Vault) (Adapter, error)
