package audit

import (
	"crypto/sha256"
	"encoding/base64"
)

// Fingerprint derives a stable, non-reversible identifier for a token
// value. It is what logs, audits and the status API show instead of the
// secret itself.
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	return base64.StdEncoding.EncodeToString(hash[:])
}
