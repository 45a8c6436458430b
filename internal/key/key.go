package key

import (
	"crypto"
	_ "crypto/sha1" // linked for the RS64/DS128 keysizes
	_ "crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
)

// Algorithm families. The two-letter tag combined with the keysize forms the
// JWT algorithm identifier, e.g. "RS256" or "DS128".
const (
	AlgRSA = "RS"
	AlgDSA = "DS"
)

// ErrVerification is returned when a signature does not verify under the key.
var ErrVerification = errors.New("signature verification failed")

// PublicKey is the verification half of a BrowserID key pair.
type PublicKey interface {
	// Algorithm returns the family tag, "RS" or "DS".
	Algorithm() string
	// KeySize returns the keysize label (64, 128 or 256).
	KeySize() int
	// AlgorithmID returns the JWT algorithm identifier, e.g. "DS256".
	AlgorithmID() string
	// Verify checks sig over message, returning ErrVerification on mismatch.
	Verify(message, sig []byte) error

	json.Marshaler
}

// SecretKey is the signing half of a BrowserID key pair. Secret keys are
// never serialized to external actors; MarshalJSON exists for the on-disk
// keystore only.
type SecretKey interface {
	Algorithm() string
	KeySize() int
	AlgorithmID() string
	// Sign produces signature bytes over message.
	Sign(message []byte) ([]byte, error)
	// Public returns the corresponding public key.
	Public() PublicKey

	json.Marshaler
}

func algorithmID(family string, size int) string {
	return fmt.Sprintf("%s%d", family, size)
}

// rsaSizes maps the keysize label onto the modulus bit length and the hash
// fixed for that label. A modulus within 1 bit of the tabulated length is
// accepted at that keysize.
var rsaSizes = []struct {
	size int
	bits int
	hash crypto.Hash
}{
	{64, 512, crypto.SHA1},
	{128, 1024, crypto.SHA256},
	{256, 2048, crypto.SHA256},
}

func rsaSizeForBits(bits int) (int, crypto.Hash, error) {
	for _, entry := range rsaSizes {
		if bits >= entry.bits-1 && bits <= entry.bits+1 {
			return entry.size, entry.hash, nil
		}
	}
	return 0, 0, fmt.Errorf("RSA modulus of %d bits matches no keysize", bits)
}

func rsaBitsForSize(size int) (int, crypto.Hash, error) {
	for _, entry := range rsaSizes {
		if entry.size == size {
			return entry.bits, entry.hash, nil
		}
	}
	return 0, 0, fmt.Errorf("unsupported RSA keysize %d", size)
}

// algorithmEnvelope is the discriminator read before dispatching to the
// family-specific decoder.
type algorithmEnvelope struct {
	Algorithm string `json:"algorithm"`
}

// UnmarshalPublic decodes a public key from its canonical JSON form. The
// algorithm field is inspected first; the remaining parameters are decoded
// by the matching family.
func UnmarshalPublic(data []byte) (PublicKey, error) {
	var env algorithmEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed key object: %w", err)
	}
	switch env.Algorithm {
	case AlgRSA:
		return unmarshalRSAPublic(data)
	case AlgDSA:
		return unmarshalDSAPublic(data)
	default:
		return nil, fmt.Errorf("unknown key algorithm %q", env.Algorithm)
	}
}

// UnmarshalSecret decodes a secret key from its canonical JSON form.
func UnmarshalSecret(data []byte) (SecretKey, error) {
	var env algorithmEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("malformed key object: %w", err)
	}
	switch env.Algorithm {
	case AlgRSA:
		return unmarshalRSASecret(data)
	case AlgDSA:
		return unmarshalDSASecret(data)
	default:
		return nil, fmt.Errorf("unknown key algorithm %q", env.Algorithm)
	}
}
