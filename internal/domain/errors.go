// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrInvalidSignature indicates a webhook payload failed signature
// verification. The request is dropped with a generic response; the
// reason is never surfaced to the caller.
var ErrInvalidSignature = errors.New("invalid signature")

// ErrParse indicates a payload could not be decoded into a message.
var ErrParse = errors.New("malformed payload")

// ErrUnsupportedEvent indicates a payload is valid but carries an event
// kind the gateway does not act on. Callers must drop the message
// silently; this is not a failure.
var ErrUnsupportedEvent = errors.New("unsupported event type")

// ErrNoRoute indicates no trigger or binding matched the message.
var ErrNoRoute = errors.New("no matching route")

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrNotPermitted indicates the acting identity is not allowed to
// perform the operation (e.g. deciding an approval it is not listed on).
var ErrNotPermitted = errors.New("not permitted")

// ErrTerminal indicates an approval request has already reached a
// terminal state and cannot transition again.
var ErrTerminal = errors.New("approval already resolved")

// ErrValidation indicates a configuration record failed validation.
var ErrValidation = errors.New("validation failed")
