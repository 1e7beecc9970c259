package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// TokenBytes is the entropy of a receipt token: 128 bits.
const TokenBytes = 16

func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// Token returns an opaque lowercase hex token. Unlike New it never falls
// back to a predictable value.
func Token() (string, error) {
	buf := make([]byte, TokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidToken reports whether raw has the shape produced by Token.
func ValidToken(raw string) bool {
	if len(raw) != TokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(raw)
	return err == nil
}
