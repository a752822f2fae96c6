package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/sells-group/qualify-cli/internal/model"
)

// ProfileKey is independent of depth: richer entries serve shallower reads.
func ProfileKey(subject string) string {
	return "profile:v1:" + model.NormalizeSubject(subject)
}

// PreprocessKey identifies a preprocess stage result. The follower bucket and
// content fingerprint invalidate the entry when the profile changes
// materially.
func PreprocessKey(subject string, followers int, bio string, captions []string) string {
	return "preprocess:v1:" + model.NormalizeSubject(subject) + ":" +
		strconv.Itoa(FollowerBucket(followers)) + ":" + Fingerprint(bio, captions)
}

// FollowerBucket rounds n to two significant digits.
func FollowerBucket(n int) int {
	if n < 100 {
		if n < 0 {
			return 0
		}
		return n
	}
	p := 1
	for v := n; v >= 100; v /= 10 {
		p *= 10
	}
	return (n + p/2) / p * p
}

// Fingerprint is the first 12 hex chars of SHA-256 over bio and captions.
func Fingerprint(bio string, captions []string) string {
	h := sha256.New()
	h.Write([]byte(bio))
	for _, c := range captions {
		h.Write([]byte{0})
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}
