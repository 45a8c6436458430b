package verify

import (
	"context"
	"strings"

	"github.com/persona-compat/browserid-go/internal/idp"
	"github.com/persona-compat/browserid-go/internal/model"
)

// maxChainLen caps the certificate chain. Multi-certificate chains are
// structurally supported but rejected here until intermediate certificates
// are deployed.
const maxChainLen = 1

// Verifier is the top-level entry point: it accepts a bundled assertion and
// the relying party's audience and returns a verified identity or a
// classified failure. Stateless apart from its injected collaborators, so
// safe for concurrent use.
type Verifier struct {
	resolver  *idp.Resolver
	hostname  string
	masterIdP string
}

// New creates a Verifier. masterIdP is the implicitly trusted fallback
// authority; hostname is this process's own IdP identity, if any.
func New(resolver *idp.Resolver, hostname, masterIdP string) *Verifier {
	return &Verifier{
		resolver:  resolver,
		hostname:  strings.ToLower(hostname),
		masterIdP: strings.ToLower(masterIdP),
	}
}

// Verify validates assertion against audience at the instant now
// (millisecond Unix epoch). On success the returned identity names the
// proven email, the audience from the assertion, the expiry and the issuer.
func (v *Verifier) Verify(ctx context.Context, assertion, audience string, now int64) (*model.VerifiedIdentity, *Error) {
	result, verr := verifyBundle(ctx, v.resolver, assertion, now)
	if verr != nil {
		return nil, verr
	}

	if len(result.Certs) > maxChainLen {
		return nil, failure(KindChainTooLong, "certificate chain too long", nil)
	}
	leaf := result.Certs[len(result.Certs)-1]

	got, err := parseRPAudience(audience)
	if err != nil {
		return nil, failure(KindAudienceMismatch, "malformed audience", err)
	}
	want, err := parseWantAudience(result.Assertion.Audience)
	if err != nil {
		return nil, failure(KindAudienceMismatch, "assertion audience is malformed", err)
	}
	if verr := matchAudience(got, want); verr != nil {
		return nil, verr
	}

	principal := leaf.Params.Principal
	issuer := strings.ToLower(leaf.Assertion.Issuer)
	emailDomain := strings.ToLower(domainOf(principal.Email))
	if !v.issuerMayVouch(ctx, issuer, emailDomain) {
		return nil, failure(KindIssuerNotAuthorized, "issuer is not authorized to vouch for this email", nil)
	}

	var validUntil int64
	if result.Assertion.Expires != nil {
		validUntil = *result.Assertion.Expires
	}
	return &model.VerifiedIdentity{
		Email:      principal.Email,
		Audience:   result.Assertion.Audience,
		ValidUntil: validUntil,
		Issuer:     leaf.Assertion.Issuer,
	}, nil
}

// issuerMayVouch applies the authority policy: the master IdP and the local
// host vouch for anyone; a domain vouches for its own users; anything else
// must be reachable through the email domain's delegation chain.
func (v *Verifier) issuerMayVouch(ctx context.Context, issuer, emailDomain string) bool {
	if issuer == "" || emailDomain == "" {
		return false
	}
	if issuer == v.masterIdP && v.masterIdP != "" {
		return true
	}
	if issuer == v.hostname && v.hostname != "" {
		return true
	}
	if issuer == emailDomain {
		return true
	}
	return v.resolver.DelegatesAuthority(ctx, emailDomain, issuer)
}

func domainOf(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return email[at+1:]
	}
	return ""
}
