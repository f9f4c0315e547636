// Package providers implements the rotation engine's pluggable
// back-ends (spec §4.5): a uniform contract over heterogeneous systems
// that each produce a new secret value.
//
// Grounded in the teacher's pkg/provider tag-indexed registry pattern,
// generalized from dsops's pull-based provider taxonomy (AWS Secrets
// Manager, Bitwarden, 1Password, ...) to the spec's four rotation
// providers, each wrapped in a sony/gobreaker circuit breaker (adopted
// from the rest of the example pack) so a provider with a failing
// upstream stops being hammered on every due tick.
package providers

import (
	"context"
	"fmt"
)

// Config is a provider's serialized configuration blob, decoded to a flat
// string map — every provider in this spec needs only string-valued
// settings (command lines, secret-name references).
type Config map[string]string

// SecretResolver looks up another secret's current plaintext value by
// name, for providers (notably aws) whose configuration references
// sibling secrets rather than embedding credentials directly.
type SecretResolver func(name string) (string, error)

// Provider is the uniform capability set every rotation back-end
// exposes (spec §4.5).
type Provider interface {
	Tag() string
	DisplayName() string
	Rotate(ctx context.Context, config Config, currentValue string, resolve SecretResolver) (string, error)
	ValidateConfig(config Config) bool
	TestRotate(ctx context.Context, config Config, currentValue string, resolve SecretResolver) bool
}

// Error is the structured failure a provider's Rotate returns; the
// rotation manager records its Error() string into a failed history row.
type Error struct {
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func errf(provider, format string, args ...any) error {
	return &Error{Provider: provider, Message: fmt.Sprintf(format, args...)}
}

func wrapf(provider string, err error, format string, args ...any) error {
	return &Error{Provider: provider, Message: fmt.Sprintf(format, args...), Err: err}
}
