package core

import "time"

// Canonical scope names. Scopes are fixed at startup; handlers and tasks
// refer to them by name only.
const (
	ScopeStorage  = "storage-access"
	ScopeDatabase = "database-access"
)

// Default audiences for the built-in scopes.
const (
	StorageAudience  = "https://storage.azure.com/.default"
	DatabaseAudience = "https://ossrdbms-aad.database.windows.net/.default"
)

// PublishTarget names where a resolved credential becomes visible to its
// consumer.
type PublishTarget string

const (
	// PublishEnv exports the credential through process environment
	// variables, for native readers that cannot call into our code.
	PublishEnv PublishTarget = "env"

	// PublishConnString embeds the credential into a database connection
	// string once, at pool construction.
	PublishConnString PublishTarget = "connection-string"

	// PublishNone keeps the credential cache-internal.
	PublishNone PublishTarget = "none"
)

// Scope describes one credential audience the process needs.
type Scope struct {
	Name             string
	Audience         string
	RefreshThreshold time.Duration
	Publish          PublishTarget
}

// Token is the outcome of one successful acquisition for a scope.
//
// ExpiresAt always comes from the issuing side (token claims, metadata
// response, or the signing window of a generated grant), never from local
// configuration.
type Token struct {
	Scope     string
	Value     string
	Source    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token is past its hard expiry.
func (t *Token) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// NeedsRefresh reports whether the token is inside the refresh window
// before its hard expiry.
func (t *Token) NeedsRefresh(now time.Time, threshold time.Duration) bool {
	return !now.Before(t.ExpiresAt.Add(-threshold))
}

// TTL returns the remaining lifetime, never negative.
func (t *Token) TTL(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// ScopeStatus is the redacted view of one cached credential, safe to
// expose on the status API.
type ScopeStatus struct {
	Scope            string    `json:"scope"`
	Present          bool      `json:"present"`
	Source           string    `json:"source,omitempty"`
	Fingerprint      string    `json:"fingerprint,omitempty"`
	IssuedAt         time.Time `json:"issued_at,omitempty"`
	ExpiresAt        time.Time `json:"expires_at,omitempty"`
	ExpiresInSeconds float64   `json:"expires_in_seconds,omitempty"`
	Refreshes        uint64    `json:"refreshes"`
	LastError        string    `json:"last_error,omitempty"`
}
