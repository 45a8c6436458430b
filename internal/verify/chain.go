package verify

import (
	"context"
	"errors"
	"fmt"

	"github.com/persona-compat/browserid-go/internal/idp"
	"github.com/persona-compat/browserid-go/internal/token"
)

// BundleResult is a fully verified bundle: the ordered certificate chain,
// the decoded trailing assertion and its raw payload claims.
type BundleResult struct {
	Certs     []*token.Cert
	Assertion token.Assertion
	Payload   map[string]interface{}
}

// verifyBundle parses the wire form, validates the certificate chain from
// the root issuer's discovered key down to the leaf, and verifies the
// trailing signed assertion under the leaf certificate's subject key.
//
// Temporal failures keep their canonical identity through this layer; every
// other chain failure collapses to the single bad-signature-in-chain error,
// with the inner cause retained for diagnostics only.
func verifyBundle(ctx context.Context, resolver *idp.Resolver, blob string, now int64) (*BundleResult, *Error) {
	bundle, err := token.Unbundle(blob)
	if err != nil {
		return nil, failure(KindMalformedToken, "no certificates provided", err)
	}

	root, err := token.Parse(bundle.Certs[0])
	if err != nil {
		return nil, chainFailure(fmt.Errorf("parse root certificate: %w", err))
	}
	rootIssuer := token.AssertionFromClaims(root.Claims).Issuer
	if rootIssuer == "" {
		return nil, chainFailure(errors.New("root certificate has no issuer"))
	}

	details, err := resolver.Resolve(ctx, rootIssuer)
	if err != nil {
		return nil, chainFailure(err)
	}

	signingKey := details.PublicKey
	certs := make([]*token.Cert, 0, len(bundle.Certs))
	for i, raw := range bundle.Certs {
		verified, err := token.Verify(raw, signingKey)
		if err != nil {
			return nil, chainFailure(fmt.Errorf("certificate %d: %w", i, err))
		}
		cert, err := token.ParseCert(verified)
		if err != nil {
			return nil, chainFailure(fmt.Errorf("certificate %d: %w", i, err))
		}
		if err := cert.Verify(now); err != nil {
			if kind, ok := temporalKind(err); ok {
				return nil, failure(kind, err.Error(), err)
			}
			return nil, chainFailure(fmt.Errorf("certificate %d: %w", i, err))
		}
		certs = append(certs, cert)
		signingKey = cert.Params.PublicKey
	}

	trailing, err := token.Verify(bundle.Assertion, signingKey)
	if err != nil {
		if errors.Is(err, token.ErrMalformedToken) {
			return nil, failure(KindMalformedToken, "malformed signed assertion", err)
		}
		return nil, failure(KindSignatureInvalid, "assertion signature invalid", err)
	}

	assertion := token.AssertionFromClaims(trailing.Claims)
	if err := assertion.Verify(now); err != nil {
		kind, _ := temporalKind(err)
		return nil, failure(kind, err.Error(), err)
	}

	return &BundleResult{Certs: certs, Assertion: assertion, Payload: trailing.Claims}, nil
}

func chainFailure(cause error) *Error {
	return failure(KindBadSignatureInChain, "bad signature in chain", cause)
}

func temporalKind(err error) (Kind, bool) {
	switch {
	case errors.Is(err, token.ErrAssertionFromFuture):
		return KindAssertionFromFuture, true
	case errors.Is(err, token.ErrAssertionExpired):
		return KindAssertionExpired, true
	default:
		return "", false
	}
}

// ResolverKind classifies a resolver error for direct resolver callers and
// for logs; the chain path never exposes these outward.
func ResolverKind(err error) (Kind, bool) {
	switch {
	case errors.Is(err, idp.ErrDelegationCycle):
		return KindDelegationCycle, true
	case errors.Is(err, idp.ErrTooManyDelegations):
		return KindTooManyDelegations, true
	case errors.Is(err, idp.ErrNoSupportDocument):
		return KindNoSupportDocument, true
	case errors.Is(err, idp.ErrMalformedSupportDocument):
		return KindMalformedSupportDoc, true
	case errors.Is(err, idp.ErrUnreachable):
		return KindIdPUnreachable, true
	default:
		return "", false
	}
}
