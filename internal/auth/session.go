package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Session is one logged-in principal's token record.
type Session struct {
	Token        string
	Username     string
	ClientIP     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastAccessed time.Time
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// newToken generates a 32-byte, hex-encoded (64 char) cryptographically
// random session token.
func newToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
