package realtime

import (
	"crypto/rand"
	"encoding/hex"
)

// randomHex returns 2*nBytes hex characters from crypto/rand, defaulting to
// 16 bytes. It backs session ids when ULID construction fails and throwaway
// identifiers in integration tests. An empty return means the system entropy
// source failed; callers treat that as a fallback condition, not a panic.
func randomHex(nBytes int) string {
	if nBytes <= 0 {
		nBytes = 16
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
