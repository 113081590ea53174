package token

import (
	"crypto/sha256"
	"encoding/base64"
)

// Fingerprint is the storage key for a raw token. Refresh-token sets and the
// denylist index tokens by fingerprint rather than by the raw string.
func Fingerprint(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(h[:])
}
