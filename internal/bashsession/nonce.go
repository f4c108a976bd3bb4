package bashsession

import (
	"crypto/rand"
	"encoding/hex"
)

// randomNonce returns a fresh long alphanumeric string unlikely to collide
// with any command's own output.
func randomNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand.Read only fails if the OS RNG is unavailable; there is
		// nothing sensible to do but degrade to a fixed, still-long value.
		return "deadbeefdeadbeefdeadbeefdeadbeef"
	}
	return hex.EncodeToString(b)
}
