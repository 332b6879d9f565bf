package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// newID creates a cryptographically random session ID with 128 bits of
// entropy, prefixed with "sess_" and URL-safe base64 encoded without
// padding.
func newID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return "sess_" + base64.RawURLEncoding.EncodeToString(b)
}
