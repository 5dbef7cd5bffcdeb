package logger

import (
	"crypto/sha256"
	"fmt"
)

// MaskToken reduces a credential to a short stable fingerprint for logging.
// The same token always yields the same tag, so log lines remain correlatable
// without ever exposing the secret itself.
func MaskToken(token string) string {
	if token == "" {
		return "token#empty"
	}
	hash := sha256.Sum256([]byte(token))
	return fmt.Sprintf("token#%x", hash[:4])
}
