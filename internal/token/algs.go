// Package token implements the BrowserID JWT codec on top of
// github.com/golang-jwt/jwt/v5, together with the typed views over token
// payloads (assertions, certificate parameters, certificates) and the
// ~-separated bundle wire form.
//
// BrowserID algorithm identifiers concatenate the key family and keysize:
// RS64, RS128, RS256, DS128, DS256. RS256 coincides with JWS RS256 and uses
// the library's builtin method; the remaining four are registered here as
// custom signing methods over the internal/key types.
package token

import (
	"errors"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/persona-compat/browserid-go/internal/key"
)

// Sentinel errors mirroring the verification failure kinds owned by this
// layer. They are preserved through wrapping, so errors.Is works on anything
// returned from Parse, Verify or Sign.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrUnknownAlgorithm = errors.New("unknown token algorithm")
	ErrSignatureInvalid = errors.New("token signature invalid")
)

const algRS256 = "RS256"

// supportedAlgs is the closed set of header alg values a verifier accepts.
var supportedAlgs = map[string]bool{
	"RS64":  true,
	"RS128": true,
	algRS256: true,
	"DS128": true,
	"DS256": true,
}

// browseridMethod adapts an internal/key pair to the jwt.SigningMethod
// surface. The hash is a function of the key's keysize, so the method only
// carries the algorithm name and delegates the crypto to the key.
type browseridMethod struct {
	alg string
}

func (m *browseridMethod) Alg() string { return m.alg }

func (m *browseridMethod) Verify(signingString string, sig []byte, k interface{}) error {
	pub, ok := k.(key.PublicKey)
	if !ok {
		return jwtlib.ErrInvalidKeyType
	}
	if pub.AlgorithmID() != m.alg {
		return fmt.Errorf("%w: key is %s, token is %s", ErrSignatureInvalid, pub.AlgorithmID(), m.alg)
	}
	if err := pub.Verify([]byte(signingString), sig); err != nil {
		return jwtlib.ErrTokenSignatureInvalid
	}
	return nil
}

func (m *browseridMethod) Sign(signingString string, k interface{}) ([]byte, error) {
	sec, ok := k.(key.SecretKey)
	if !ok {
		return nil, jwtlib.ErrInvalidKeyType
	}
	if sec.AlgorithmID() != m.alg {
		return nil, fmt.Errorf("cannot sign %s token with %s key", m.alg, sec.AlgorithmID())
	}
	return sec.Sign([]byte(signingString))
}

func init() {
	for _, alg := range []string{"RS64", "RS128", "DS128", "DS256"} {
		alg := alg
		jwtlib.RegisterSigningMethod(alg, func() jwtlib.SigningMethod {
			return &browseridMethod{alg: alg}
		})
	}
}

// signingMethodFor resolves the method and the key representation the method
// expects. The builtin RS256 operates on stdlib *rsa keys; the registered
// BrowserID methods operate on internal/key values directly.
func signingMethodFor(sk key.SecretKey) (jwtlib.SigningMethod, interface{}, error) {
	algID := sk.AlgorithmID()
	if algID == algRS256 {
		rsaKey, ok := sk.(*key.RSASecretKey)
		if !ok {
			return nil, nil, fmt.Errorf("RS256 requires an RSA secret key")
		}
		return jwtlib.SigningMethodRS256, rsaKey.CryptoKey(), nil
	}
	method := jwtlib.GetSigningMethod(algID)
	if method == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algID)
	}
	return method, sk, nil
}

// verificationKeyFor returns the representation of pk that the signing
// method selected by alg expects.
func verificationKeyFor(pk key.PublicKey, alg string) interface{} {
	if alg == algRS256 {
		if rsaKey, ok := pk.(*key.RSAPublicKey); ok {
			return rsaKey.CryptoKey()
		}
	}
	return pk
}
