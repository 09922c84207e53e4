package core

import "time"

// Audit actions emitted by the credential cache.
const (
	AuditAcquire = "credential.acquire"
	AuditRefresh = "credential.refresh"
	AuditPublish = "credential.publish"
	AuditServe   = "credential.serve_stale"
)

// AuditEntry is one credential lifecycle event. Token values never
// appear here, only fingerprints.
type AuditEntry struct {
	Time          time.Time `json:"time"`
	Action        string    `json:"action"`
	Scope         string    `json:"scope"`
	Source        string    `json:"source,omitempty"`
	Fingerprint   string    `json:"fingerprint,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	DurationMS    int64     `json:"duration_ms,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Success       bool      `json:"success"`
	Error         string    `json:"error,omitempty"`
}
