package bulk

import (
	"encoding/base64"
	"math/rand"
)

// Payload returns a base64 string covering rawBytes of pseudo-random
// bytes, the synthetic "message" field for every document in a run.
// Identical seeds produce identical payloads, which keeps runs
// reproducible; the binary-looking content defeats trivial compression so
// indices grow at a realistic rate.
func Payload(rawBytes int, seed int64) string {
	buf := make([]byte, rawBytes)
	r := rand.New(rand.NewSource(seed))
	r.Read(buf)
	return base64.StdEncoding.EncodeToString(buf)
}
