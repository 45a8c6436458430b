package key

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSASignVerifyRoundTrip(t *testing.T) {
	message := []byte("assertion body")
	for _, tc := range []struct {
		size     int
		sigBytes int
	}{
		{128, 40}, // 160-bit q: r and s are 20 bytes each
		{256, 64}, // 256-bit q: 32 bytes each
	} {
		sk, err := GenerateDSA(tc.size)
		require.NoError(t, err)
		assert.Equal(t, tc.size, sk.KeySize())

		sig, err := sk.Sign(message)
		require.NoError(t, err)
		assert.Len(t, sig, tc.sigBytes)
		assert.NoError(t, sk.Public().Verify(message, sig))
	}
}

func TestDSAVerifyRejectsTampering(t *testing.T) {
	sk, err := GenerateDSA(128)
	require.NoError(t, err)
	pub := sk.Public()

	message := []byte("assertion body")
	sig, err := sk.Sign(message)
	require.NoError(t, err)

	tampered := append([]byte(nil), message...)
	tampered[0] ^= 0x01
	assert.ErrorIs(t, pub.Verify(tampered, sig), ErrVerification)

	badSig := append([]byte(nil), sig...)
	badSig[3] ^= 0x01
	assert.ErrorIs(t, pub.Verify(message, badSig), ErrVerification)
}

// Leading zero bytes of r are reconstructed by the verifier's left-padding,
// so a signature with its leading zeros stripped still verifies.
func TestDSAVerifyLeftPadsShortSignatures(t *testing.T) {
	sk, err := GenerateDSA(128)
	require.NoError(t, err)
	pub := sk.Public()
	message := []byte("padding probe")

	for i := 0; i < 64; i++ {
		sig, err := sk.Sign(message)
		require.NoError(t, err)
		trimmed := sig
		for len(trimmed) > 0 && trimmed[0] == 0 {
			trimmed = trimmed[1:]
		}
		assert.NoError(t, pub.Verify(message, trimmed))
	}
}

func TestDSAJSONRoundTrip(t *testing.T) {
	sk, err := GenerateDSA(256)
	require.NoError(t, err)

	rawPub, err := json.Marshal(sk.Public())
	require.NoError(t, err)
	var fields map[string]string
	require.NoError(t, json.Unmarshal(rawPub, &fields))
	assert.Equal(t, "DS", fields["algorithm"])
	assert.Equal(t, dsaParams256.Q.Text(16), fields["q"])

	pub, err := UnmarshalPublic(rawPub)
	require.NoError(t, err)
	assert.Equal(t, "DS256", pub.AlgorithmID())

	rawSec, err := json.Marshal(sk)
	require.NoError(t, err)
	sec, err := UnmarshalSecret(rawSec)
	require.NoError(t, err)

	message := []byte("round trip")
	sig, err := sec.Sign(message)
	require.NoError(t, err)
	assert.NoError(t, pub.Verify(message, sig))
}

func TestDSARejectsForeignParameterSets(t *testing.T) {
	raw, err := json.Marshal(map[string]string{
		"algorithm": "DS",
		"p":         "7",
		"q":         "5",
		"g":         "3",
		"y":         "2",
	})
	require.NoError(t, err)
	_, err = UnmarshalPublic(raw)
	assert.Error(t, err)
}
