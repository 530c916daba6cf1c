package util

import (
	"crypto/rand"
	"encoding/hex"
)

// idBytes is sized so identifiers stay readable in audit entries and
// log lines while keeping collisions out of the question.
const idBytes = 12

// NewID returns a random identifier such as "post_4f9c…". The prefix
// names the entity kind (post, jti, rft); an empty prefix yields the
// bare hex string.
func NewID(prefix string) string {
	buf := make([]byte, idBytes)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}
