package token

import (
	"errors"
	"fmt"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/persona-compat/browserid-go/internal/key"
)

// Token is a parsed three-segment JWT. Claims hold the decoded payload
// object; Header holds the decoded header object. A Token produced by Parse
// has not had its signature checked.
type Token struct {
	Raw    string
	Alg    string
	Header map[string]interface{}
	Claims map[string]interface{}
}

// Claims validation is disabled on the parser: BrowserID timestamps are
// millisecond epochs, which the registered-claims validator would misread as
// seconds. Temporal checks live in Assertion.Verify.
var parser = jwtlib.NewParser(jwtlib.WithoutClaimsValidation())

// Parse splits and decodes a token without verifying its signature. It fails
// with ErrMalformedToken unless the input is exactly three base64url
// segments with JSON header and payload, and with ErrUnknownAlgorithm when
// the header alg is outside the BrowserID set.
func Parse(raw string) (*Token, error) {
	claims := jwtlib.MapClaims{}
	parsed, _, err := parser.ParseUnverified(raw, claims)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenUnverifiable) {
			return nil, fmt.Errorf("%w: %v", ErrUnknownAlgorithm, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	alg, _ := parsed.Header["alg"].(string)
	if !supportedAlgs[alg] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}
	return &Token{
		Raw:    raw,
		Alg:    alg,
		Header: parsed.Header,
		Claims: map[string]interface{}(claims),
	}, nil
}

// Verify parses raw and checks its signature against pk. The header alg must
// be in the BrowserID set and must agree with the algorithm the key
// advertises; a disagreement is a signature failure, not a fallback.
func Verify(raw string, pk key.PublicKey) (*Token, error) {
	claims := jwtlib.MapClaims{}
	parsed, err := parser.ParseWithClaims(raw, claims, func(t *jwtlib.Token) (interface{}, error) {
		alg := t.Method.Alg()
		if !supportedAlgs[alg] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
		}
		if alg != pk.AlgorithmID() {
			return nil, fmt.Errorf("%w: token alg %s, key alg %s", ErrSignatureInvalid, alg, pk.AlgorithmID())
		}
		return verificationKeyFor(pk, alg), nil
	})
	if err != nil {
		return nil, mapVerifyError(err)
	}
	alg, _ := parsed.Header["alg"].(string)
	return &Token{
		Raw:    raw,
		Alg:    alg,
		Header: parsed.Header,
		Claims: map[string]interface{}(claims),
	}, nil
}

func mapVerifyError(err error) error {
	switch {
	case errors.Is(err, ErrUnknownAlgorithm) || errors.Is(err, ErrSignatureInvalid) || errors.Is(err, ErrMalformedToken):
		return err
	case errors.Is(err, jwtlib.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwtlib.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	case errors.Is(err, jwtlib.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrUnknownAlgorithm, err)
	default:
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
}

// Sign serializes claims and signs them with sk. The emitted header carries
// the algorithm identifier derived from the key.
func Sign(claims map[string]interface{}, sk key.SecretKey) (string, error) {
	method, signKey, err := signingMethodFor(sk)
	if err != nil {
		return "", err
	}
	tok := jwtlib.NewWithClaims(method, jwtlib.MapClaims(claims))
	signed, err := tok.SignedString(signKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// claimString reads a string claim, returning "" when absent or non-string.
func claimString(claims map[string]interface{}, name string) string {
	s, _ := claims[name].(string)
	return s
}

// claimMillis reads a millisecond-epoch claim. JSON numbers decode as
// float64; integral values up to 2^53 round-trip exactly, which covers any
// plausible timestamp.
func claimMillis(claims map[string]interface{}, name string) (int64, bool) {
	v, ok := claims[name]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
