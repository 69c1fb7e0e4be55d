package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const agentTokenBytes = 32

// enrollmentTokenPattern is the only accepted enrollment token shape.
var enrollmentTokenPattern = regexp.MustCompile(`^ORG_[0-9a-f]{8}_[0-9a-f]{8}$`)

// GenerateAgentToken creates a per-endpoint bearer token. Returns the
// plaintext (sent to the agent exactly once) and the SHA-256 hex digest the
// server stores.
func GenerateAgentToken() (plaintext string, hash string, err error) {
	raw := make([]byte, agentTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", "", fmt.Errorf("generate agent token: %w", err)
	}
	plaintext = hex.EncodeToString(raw)
	return plaintext, HashToken(plaintext), nil
}

// HashToken returns the SHA-256 hex digest of a token string.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// HashEqual compares two hex digests in constant time.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateEnrollmentToken builds an org enrollment token:
// ORG_<first 8 hex of the org id>_<8 random hex>. The prefix is a human
// affordance; only the full string is ever accepted.
func GenerateEnrollmentToken(orgID string) (string, error) {
	compact := strings.ToLower(strings.ReplaceAll(orgID, "-", ""))
	if len(compact) < 8 {
		return "", fmt.Errorf("org id %q too short for token prefix", orgID)
	}
	raw := make([]byte, 4)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate enrollment token: %w", err)
	}
	return fmt.Sprintf("ORG_%s_%s", compact[:8], hex.EncodeToString(raw)), nil
}

// ValidEnrollmentToken reports whether a string has the enrollment token shape.
func ValidEnrollmentToken(token string) bool {
	return enrollmentTokenPattern.MatchString(token)
}

// TokenPreview redacts a token value to its first 8 and last 4 characters.
func TokenPreview(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:8] + "..." + token[len(token)-4:]
}
