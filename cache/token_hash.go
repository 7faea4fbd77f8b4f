package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashToken derives the cache key for a token value. Keying by digest keeps
// raw token strings out of cache backends and gives fixed-length keys.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
