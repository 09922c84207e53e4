package core

import "context"

// CredentialSource is one entry of an identity chain: a concrete way of
// obtaining a token for a scope (CLI exec, instance metadata, local
// signing key).
//
// Acquire returns ErrSourceUnavailable (wrapped) when the source cannot
// serve right now for environmental reasons (binary missing, not logged
// in, no key configured); the chain then advances to the next entry.
// Any other error aborts the chain.
type CredentialSource interface {
	// Name identifies the source in logs, audits and status output.
	Name() string

	// Supports reports whether the source can produce credentials for
	// the given scope at all. Unsupported scopes are skipped silently.
	Supports(scope Scope) bool

	Acquire(ctx context.Context, scope Scope) (*Token, error)
}

// Acquirer is the consuming side of an identity chain.
type Acquirer interface {
	Acquire(ctx context.Context, scope Scope) (*Token, error)
}

// CredentialPublisher makes a freshly resolved token visible to its
// out-of-process consumer. Publishing happens inside the cache's
// refresh critical section, so readers never observe a half-published
// state.
type CredentialPublisher interface {
	Publish(scope Scope, token *Token) error
}

// TokenGetter hands out valid tokens, refreshing behind the scenes.
// This is the only surface request handlers and the pool builder see.
type TokenGetter interface {
	Get(ctx context.Context, scopeName string) (*Token, error)
}

// Auditor records credential lifecycle events.
type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}
