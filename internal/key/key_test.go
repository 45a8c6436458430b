package key

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalDispatchesOnAlgorithm(t *testing.T) {
	rsaKey, err := GenerateRSA(64)
	require.NoError(t, err)
	dsaKey, err := GenerateDSA(128)
	require.NoError(t, err)

	rawRSA, err := rsaKey.Public().MarshalJSON()
	require.NoError(t, err)
	rawDSA, err := dsaKey.Public().MarshalJSON()
	require.NoError(t, err)

	pub, err := UnmarshalPublic(rawRSA)
	require.NoError(t, err)
	assert.IsType(t, &RSAPublicKey{}, pub)

	pub, err = UnmarshalPublic(rawDSA)
	require.NoError(t, err)
	assert.IsType(t, &DSAPublicKey{}, pub)
}

func TestUnmarshalRejectsUnknownAlgorithm(t *testing.T) {
	_, err := UnmarshalPublic([]byte(`{"algorithm":"EC","x":"1","y":"2"}`))
	assert.Error(t, err)
	_, err = UnmarshalSecret([]byte(`{"algorithm":"EC","d":"1"}`))
	assert.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a, err := GenerateDSA(128)
	require.NoError(t, err)
	b, err := GenerateDSA(128)
	require.NoError(t, err)

	fpA := Fingerprint(a.Public())
	assert.True(t, strings.HasPrefix(fpA, "z"))
	assert.Equal(t, fpA, Fingerprint(a.Public()))
	assert.NotEqual(t, fpA, Fingerprint(b.Public()))
}
