package progression

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// HashAnswer returns the hex sha256 digest of the normalized answer text.
func HashAnswer(answer string) string {
	sum := sha256.Sum256([]byte(normalizeAnswer(answer)))
	return hex.EncodeToString(sum[:])
}

// AnswerMatches compares the digest of answer with correctHash in constant time.
func AnswerMatches(answer, correctHash string) bool {
	got := HashAnswer(answer)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(correctHash))) == 1
}

func normalizeAnswer(answer string) string {
	return strings.ToLower(strings.Join(strings.Fields(answer), " "))
}
