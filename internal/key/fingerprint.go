package key

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/mr-tron/base58"
)

// Fingerprint returns a compact, log-friendly identifier for a public key:
// the multibase (z-prefixed base58) encoding of the SHA-256 digest of its
// canonical JSON form. Two keys fingerprint equal iff they serialize equal.
func Fingerprint(pk PublicKey) string {
	raw, err := json.Marshal(pk)
	if err != nil {
		return "z"
	}
	sum := sha256.Sum256(raw)
	return "z" + base58.Encode(sum[:])
}
