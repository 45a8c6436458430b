package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/persona-compat/browserid-go/internal/key"
)

// Temporal failures keep their names across every layer: the bundle and
// verifier re-raise them unchanged.
var (
	ErrAssertionFromFuture = errors.New("assertion issued later than verification date")
	ErrAssertionExpired    = errors.New("assertion has expired")
)

// Assertion is a view over the temporal and addressing claims of a token
// payload. All fields are optional on the wire; absent bounds are simply not
// enforced. Timestamps are millisecond Unix epochs.
type Assertion struct {
	IssuedAt *int64
	Expires  *int64
	Issuer   string
	Audience string
}

// AssertionFromClaims extracts iat, exp, iss and aud from a decoded payload.
func AssertionFromClaims(claims map[string]interface{}) Assertion {
	a := Assertion{
		Issuer:   claimString(claims, "iss"),
		Audience: claimString(claims, "aud"),
	}
	if iat, ok := claimMillis(claims, "iat"); ok {
		a.IssuedAt = &iat
	}
	if exp, ok := claimMillis(claims, "exp"); ok {
		a.Expires = &exp
	}
	return a
}

// Verify enforces iat <= now <= exp for whichever bounds are present.
// Equality is acceptance on both ends.
func (a Assertion) Verify(now int64) error {
	if a.IssuedAt != nil && *a.IssuedAt > now {
		return ErrAssertionFromFuture
	}
	if a.Expires != nil && *a.Expires < now {
		return ErrAssertionExpired
	}
	return nil
}

// Principal is the subject of a certificate.
type Principal struct {
	Email string `json:"email"`
}

// CertParams is the view over the subject-binding claims of a certificate
// payload: the user's public key and the principal it is bound to.
type CertParams struct {
	PublicKey key.PublicKey
	Principal Principal
}

// CertParamsFromClaims extracts and validates principal and public-key.
func CertParamsFromClaims(claims map[string]interface{}) (CertParams, error) {
	var params CertParams

	rawKey, ok := claims["public-key"]
	if !ok {
		return params, fmt.Errorf("certificate payload lacks public-key")
	}
	encoded, err := json.Marshal(rawKey)
	if err != nil {
		return params, fmt.Errorf("certificate public-key is not an object: %w", err)
	}
	pk, err := key.UnmarshalPublic(encoded)
	if err != nil {
		return params, fmt.Errorf("certificate public-key: %w", err)
	}
	params.PublicKey = pk

	rawPrincipal, ok := claims["principal"]
	if !ok {
		return params, fmt.Errorf("certificate payload lacks principal")
	}
	encoded, err = json.Marshal(rawPrincipal)
	if err != nil {
		return params, fmt.Errorf("certificate principal is not an object: %w", err)
	}
	if err := json.Unmarshal(encoded, &params.Principal); err != nil {
		return params, fmt.Errorf("certificate principal: %w", err)
	}
	if !strings.Contains(params.Principal.Email, "@") {
		return params, fmt.Errorf("principal email %q is not an email", params.Principal.Email)
	}
	return params, nil
}

// Cert is a certificate: a token whose payload supplies both an Assertion
// (the cert's validity window and issuer) and CertParams (the subject).
type Cert struct {
	Token     *Token
	Assertion Assertion
	Params    CertParams
}

// ParseCert builds the certificate views over an already-parsed token.
func ParseCert(t *Token) (*Cert, error) {
	params, err := CertParamsFromClaims(t.Claims)
	if err != nil {
		return nil, err
	}
	return &Cert{
		Token:     t,
		Assertion: AssertionFromClaims(t.Claims),
		Params:    params,
	}, nil
}

// Verify checks the certificate's own validity window. The subject binding
// was validated at parse time; the JWT signature is the chain layer's job.
func (c *Cert) Verify(now int64) error {
	return c.Assertion.Verify(now)
}

// SignCert mints a certificate binding principal and userKey, valid over
// [iat, exp] and issued by issuer. Used by the local-IdP bootstrap and by
// tests; issuance policy beyond that is out of scope.
func SignCert(issuer string, principal Principal, userKey key.PublicKey, iat, exp int64, sk key.SecretKey) (string, error) {
	rawKey, err := json.Marshal(userKey)
	if err != nil {
		return "", fmt.Errorf("serialize subject key: %w", err)
	}
	var keyObj map[string]interface{}
	if err := json.Unmarshal(rawKey, &keyObj); err != nil {
		return "", fmt.Errorf("serialize subject key: %w", err)
	}
	return Sign(map[string]interface{}{
		"iss":        issuer,
		"iat":        iat,
		"exp":        exp,
		"principal":  map[string]interface{}{"email": principal.Email},
		"public-key": keyObj,
	}, sk)
}

// SignAssertion mints the user-held assertion bound to an audience.
func SignAssertion(audience string, exp int64, sk key.SecretKey) (string, error) {
	return Sign(map[string]interface{}{
		"aud": audience,
		"exp": exp,
	}, sk)
}
