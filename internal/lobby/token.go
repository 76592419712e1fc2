package lobby

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// NewToken returns a match admission secret: 64 bits from crypto/rand as
// 16 hex characters.
func NewToken() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating match token: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}
