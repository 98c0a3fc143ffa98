package util

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

// NewArticleID allocates a fresh article identifier. Article ids are plain
// UUID strings so they can be minted client- or server-side interchangeably.
func NewArticleID() string {
	return uuid.NewString()
}
