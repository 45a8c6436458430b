package token

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persona-compat/browserid-go/internal/key"
)

func millis(v int64) *int64 { return &v }

func TestAssertionTemporalBounds(t *testing.T) {
	const now = int64(1_000_000)

	for _, tc := range []struct {
		name string
		a    Assertion
		want error
	}{
		{"no bounds", Assertion{}, nil},
		{"inside window", Assertion{IssuedAt: millis(now - 10), Expires: millis(now + 10)}, nil},
		{"exp equals now", Assertion{Expires: millis(now)}, nil},
		{"exp just past", Assertion{Expires: millis(now - 1)}, ErrAssertionExpired},
		{"iat equals now", Assertion{IssuedAt: millis(now)}, nil},
		{"iat just ahead", Assertion{IssuedAt: millis(now + 1)}, ErrAssertionFromFuture},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.a.Verify(now)
			if tc.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.want)
			}
		})
	}
}

func TestAssertionFromClaims(t *testing.T) {
	a := AssertionFromClaims(map[string]interface{}{
		"iat": float64(100),
		"exp": float64(200),
		"iss": "idp.example",
		"aud": "https://rp.example",
	})
	require.NotNil(t, a.IssuedAt)
	require.NotNil(t, a.Expires)
	assert.Equal(t, int64(100), *a.IssuedAt)
	assert.Equal(t, int64(200), *a.Expires)
	assert.Equal(t, "idp.example", a.Issuer)
	assert.Equal(t, "https://rp.example", a.Audience)

	empty := AssertionFromClaims(map[string]interface{}{})
	assert.Nil(t, empty.IssuedAt)
	assert.Nil(t, empty.Expires)
}

func TestCertParamsFromClaims(t *testing.T) {
	sk, err := key.GenerateDSA(128)
	require.NoError(t, err)
	rawKey, err := json.Marshal(sk.Public())
	require.NoError(t, err)
	var keyObj map[string]interface{}
	require.NoError(t, json.Unmarshal(rawKey, &keyObj))

	params, err := CertParamsFromClaims(map[string]interface{}{
		"public-key": keyObj,
		"principal":  map[string]interface{}{"email": "alice@idp.example"},
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@idp.example", params.Principal.Email)
	assert.Equal(t, "DS128", params.PublicKey.AlgorithmID())

	_, err = CertParamsFromClaims(map[string]interface{}{
		"principal": map[string]interface{}{"email": "alice@idp.example"},
	})
	assert.Error(t, err, "missing public-key")

	_, err = CertParamsFromClaims(map[string]interface{}{
		"public-key": keyObj,
	})
	assert.Error(t, err, "missing principal")

	_, err = CertParamsFromClaims(map[string]interface{}{
		"public-key": keyObj,
		"principal":  map[string]interface{}{"email": "not-an-email"},
	})
	assert.Error(t, err, "email without @")
}

func TestSignCertRoundTrip(t *testing.T) {
	issuerKey, err := key.GenerateRSA(128)
	require.NoError(t, err)
	userKey, err := key.GenerateDSA(128)
	require.NoError(t, err)

	raw, err := SignCert("idp.example", Principal{Email: "alice@idp.example"}, userKey.Public(), 100, 200, issuerKey)
	require.NoError(t, err)

	tok, err := Verify(raw, issuerKey.Public())
	require.NoError(t, err)
	cert, err := ParseCert(tok)
	require.NoError(t, err)

	assert.Equal(t, "idp.example", cert.Assertion.Issuer)
	assert.Equal(t, "alice@idp.example", cert.Params.Principal.Email)
	assert.NoError(t, cert.Verify(150))
	assert.ErrorIs(t, cert.Verify(201), ErrAssertionExpired)
	assert.ErrorIs(t, cert.Verify(99), ErrAssertionFromFuture)
}

func TestUnbundle(t *testing.T) {
	b, err := Unbundle("cert1~cert2~assertion")
	require.NoError(t, err)
	assert.Equal(t, []string{"cert1", "cert2"}, b.Certs)
	assert.Equal(t, "assertion", b.Assertion)

	_, err = Unbundle("assertiononly")
	assert.ErrorIs(t, err, ErrNoCertificates)

	assert.Equal(t, "c1~c2~a", JoinBundle([]string{"c1", "c2"}, "a"))
}
