// Package idp discovers the authoritative public key for an issuer domain
// through the /.well-known/browserid protocol: Basic documents carry the key
// and the authentication/provisioning endpoints, Delegated documents hand
// authority to another domain. The resolver follows delegations with cycle
// detection and a hop ceiling, short-circuits to the local keystore when the
// issuer is this host, and honors a startup-time shim table for tests.
package idp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/persona-compat/browserid-go/internal/key"
)

// Resolver failure modes. Callers inside the certificate chain collapse
// these to a bad-signature error; direct callers (delegatesAuthority, tests)
// see them typed.
var (
	ErrNoSupportDocument        = errors.New("no support document")
	ErrMalformedSupportDocument = errors.New("malformed support document")
	ErrDelegationCycle          = errors.New("authority delegation cycle")
	ErrTooManyDelegations       = errors.New("too many authority delegations")
	ErrUnreachable              = errors.New("identity provider unreachable")
)

// WellKnownPath is where every participating domain serves its support
// document.
const WellKnownPath = "/.well-known/browserid"

// maxDelegations bounds the delegation set; the walk fails once a seventh
// distinct domain would be visited.
const maxDelegations = 6

// authURLPattern validates the absolute authentication and provisioning
// URLs formed from a Basic document.
var authURLPattern = regexp.MustCompile(`^(?i)https?://[a-z0-9-]+(\.[a-z0-9-]+)*(:[0-9]+)?(/.*)?$`)

var (
	supportDocFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "browserid_support_document_fetches_total",
			Help: "Support document fetches, by result.",
		},
		[]string{"result"}, // ok, unreachable, missing, malformed
	)
	delegationDepth = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "browserid_delegation_depth",
			Help:    "Domains visited per successful support document resolution.",
			Buckets: []float64{1, 2, 3, 4, 5, 6},
		},
	)
)

// Details is the outcome of resolving a domain: the key that signs its
// certificates and the absolute endpoint URLs from its Basic document.
type Details struct {
	// Domain is the domain that ultimately served the Basic document,
	// after any delegation.
	Domain         string
	PublicKey      key.PublicKey
	Authentication string
	Provisioning   string
}

// Config carries the local-authority settings the resolver needs.
type Config struct {
	// Hostname is the locally configured host; when the resolver has a
	// local key, resolving it never touches the network.
	Hostname string
	// AuthenticationPath and ProvisioningPath are the local IdP's endpoint
	// paths, used to synthesize Details for the local host.
	AuthenticationPath string
	ProvisioningPath   string
}

// Resolver discovers issuer keys. Safe for concurrent use: the shim table
// and local key are fixed at construction.
type Resolver struct {
	cfg      Config
	localKey key.PublicKey
	fetcher  Fetcher
	shim     ShimTable
}

// NewResolver creates a Resolver. localKey may be nil when this process has
// no local IdP identity; fetcher must not be nil.
func NewResolver(cfg Config, localKey key.PublicKey, fetcher Fetcher, shim ShimTable) *Resolver {
	return &Resolver{cfg: cfg, localKey: localKey, fetcher: fetcher, shim: shim}
}

// Resolve walks from domain to the Basic support document that speaks for
// it and returns that document's key and endpoints.
func (r *Resolver) Resolve(ctx context.Context, domain string) (*Details, error) {
	domain = strings.ToLower(domain)

	if r.localKey != nil && domain == r.cfg.Hostname {
		origin := "https://" + domain
		return &Details{
			Domain:         domain,
			PublicKey:      r.localKey,
			Authentication: origin + r.cfg.AuthenticationPath,
			Provisioning:   origin + r.cfg.ProvisioningPath,
		}, nil
	}

	visited := make(map[string]bool)
	for {
		if visited[domain] {
			return nil, fmt.Errorf("%w: %s revisited", ErrDelegationCycle, domain)
		}
		visited[domain] = true
		if len(visited) > maxDelegations {
			return nil, ErrTooManyDelegations
		}

		body, urlPrefix, err := r.fetchWellKnown(ctx, domain)
		if err != nil {
			return nil, err
		}

		var doc supportDocument
		if err := json.Unmarshal(body, &doc); err != nil {
			supportDocFetches.WithLabelValues("malformed").Inc()
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSupportDocument, domain, err)
		}

		if doc.Authority != "" {
			domain = strings.ToLower(doc.Authority)
			continue
		}

		details, err := doc.basicDetails(domain, urlPrefix)
		if err != nil {
			supportDocFetches.WithLabelValues("malformed").Inc()
			return nil, err
		}
		supportDocFetches.WithLabelValues("ok").Inc()
		delegationDepth.Observe(float64(len(visited)))
		return details, nil
	}
}

// DelegatesAuthority reports whether emailDomain's support document points
// at issuingDomain: true iff the resolved authentication URL's host-and-port
// equals the issuing domain. Every lookup failure is a false.
func (r *Resolver) DelegatesAuthority(ctx context.Context, emailDomain, issuingDomain string) bool {
	details, err := r.Resolve(ctx, emailDomain)
	if err != nil {
		return false
	}
	parsed, err := url.Parse(details.Authentication)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, issuingDomain)
}

// fetchWellKnown obtains the raw support document for a domain, consulting
// the shim table first. It returns the body and the prefix under which the
// document's relative URLs are rooted.
func (r *Resolver) fetchWellKnown(ctx context.Context, domain string) ([]byte, string, error) {
	if entry, ok := r.shim[domain]; ok {
		return entry.Body, entry.Origin, nil
	}
	origin := "https://" + domain
	body, err := r.fetcher.Fetch(ctx, origin+WellKnownPath)
	if err != nil {
		switch {
		case errors.Is(err, ErrNoSupportDocument):
			supportDocFetches.WithLabelValues("missing").Inc()
		default:
			supportDocFetches.WithLabelValues("unreachable").Inc()
		}
		return nil, "", fmt.Errorf("%s: %w", domain, err)
	}
	return body, origin, nil
}

// supportDocument is the raw shape served at /.well-known/browserid. A
// non-empty authority marks the Delegated form and wins over any other
// fields.
type supportDocument struct {
	Authority      string          `json:"authority"`
	PublicKey      json.RawMessage `json:"public-key"`
	Authentication string          `json:"authentication"`
	Provisioning   string          `json:"provisioning"`
}

func (d *supportDocument) basicDetails(domain, urlPrefix string) (*Details, error) {
	if len(d.PublicKey) == 0 || d.Authentication == "" || d.Provisioning == "" {
		return nil, fmt.Errorf("%w: %s: basic document requires public-key, authentication and provisioning", ErrMalformedSupportDocument, domain)
	}
	pk, err := key.UnmarshalPublic(d.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSupportDocument, domain, err)
	}
	auth := urlPrefix + d.Authentication
	prov := urlPrefix + d.Provisioning
	if !authURLPattern.MatchString(auth) {
		return nil, fmt.Errorf("%w: %s: invalid authentication URL %q", ErrMalformedSupportDocument, domain, auth)
	}
	if !authURLPattern.MatchString(prov) {
		return nil, fmt.Errorf("%w: %s: invalid provisioning URL %q", ErrMalformedSupportDocument, domain, prov)
	}
	return &Details{
		Domain:         domain,
		PublicKey:      pk,
		Authentication: auth,
		Provisioning:   prov,
	}, nil
}
