package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/persona-compat/browserid-go/internal/key"
)

// fakeFetcher serves canned bodies keyed by URL.
type fakeFetcher struct {
	docs map[string]string
	errs map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if err, ok := f.errs[url]; ok {
		return nil, err
	}
	if body, ok := f.docs[url]; ok {
		return []byte(body), nil
	}
	return nil, fmt.Errorf("%w: no canned document for %s", ErrNoSupportDocument, url)
}

func wellKnownURL(domain string) string {
	return "https://" + domain + WellKnownPath
}

func testPublicKeyJSON(t *testing.T) (key.PublicKey, string) {
	t.Helper()
	sk, err := key.GenerateDSA(128)
	require.NoError(t, err)
	raw, err := json.Marshal(sk.Public())
	require.NoError(t, err)
	return sk.Public(), string(raw)
}

func basicDoc(keyJSON string) string {
	return fmt.Sprintf(`{"public-key":%s,"authentication":"/auth","provisioning":"/prov"}`, keyJSON)
}

func TestResolveBasicDocument(t *testing.T) {
	pub, keyJSON := testPublicKeyJSON(t)
	fetcher := &fakeFetcher{docs: map[string]string{
		wellKnownURL("idp.example"): basicDoc(keyJSON),
	}}
	r := NewResolver(Config{}, nil, fetcher, nil)

	details, err := r.Resolve(context.Background(), "idp.example")
	require.NoError(t, err)
	assert.Equal(t, "idp.example", details.Domain)
	assert.Equal(t, "https://idp.example/auth", details.Authentication)
	assert.Equal(t, "https://idp.example/prov", details.Provisioning)
	assert.Equal(t, key.Fingerprint(pub), key.Fingerprint(details.PublicKey))
}

func TestResolveFollowsDelegation(t *testing.T) {
	_, keyJSON := testPublicKeyJSON(t)
	fetcher := &fakeFetcher{docs: map[string]string{
		wellKnownURL("mail.example"): `{"authority":"idp.example"}`,
		wellKnownURL("idp.example"):  basicDoc(keyJSON),
	}}
	r := NewResolver(Config{}, nil, fetcher, nil)

	details, err := r.Resolve(context.Background(), "mail.example")
	require.NoError(t, err)
	assert.Equal(t, "idp.example", details.Domain)
	assert.Equal(t, "https://idp.example/auth", details.Authentication)
}

func TestResolveDetectsDelegationCycle(t *testing.T) {
	fetcher := &fakeFetcher{docs: map[string]string{
		wellKnownURL("a.example"): `{"authority":"b.example"}`,
		wellKnownURL("b.example"): `{"authority":"a.example"}`,
	}}
	r := NewResolver(Config{}, nil, fetcher, nil)

	_, err := r.Resolve(context.Background(), "a.example")
	assert.ErrorIs(t, err, ErrDelegationCycle)
}

func TestResolveBoundsDelegationDepth(t *testing.T) {
	docs := make(map[string]string)
	for i := 0; i < 10; i++ {
		docs[wellKnownURL(fmt.Sprintf("d%d.example", i))] = fmt.Sprintf(`{"authority":"d%d.example"}`, i+1)
	}
	r := NewResolver(Config{}, nil, &fakeFetcher{docs: docs}, nil)

	_, err := r.Resolve(context.Background(), "d0.example")
	assert.ErrorIs(t, err, ErrTooManyDelegations)
}

func TestResolveErrorClassification(t *testing.T) {
	_, keyJSON := testPublicKeyJSON(t)
	fetcher := &fakeFetcher{
		docs: map[string]string{
			wellKnownURL("notjson.example"):  `{{{`,
			wellKnownURL("partial.example"):  fmt.Sprintf(`{"public-key":%s,"authentication":"/auth"}`, keyJSON),
			wellKnownURL("badkey.example"):   `{"public-key":{"algorithm":"EC"},"authentication":"/auth","provisioning":"/prov"}`,
			wellKnownURL("badurl.example"):   fmt.Sprintf(`{"public-key":%s,"authentication":"ht!tp","provisioning":"/prov"}`, keyJSON),
		},
		errs: map[string]error{
			wellKnownURL("down.example"): fmt.Errorf("%w: connect timeout", ErrUnreachable),
		},
	}
	r := NewResolver(Config{}, nil, fetcher, nil)
	ctx := context.Background()

	_, err := r.Resolve(ctx, "missing.example")
	assert.ErrorIs(t, err, ErrNoSupportDocument)

	_, err = r.Resolve(ctx, "down.example")
	assert.ErrorIs(t, err, ErrUnreachable)

	for _, domain := range []string{"notjson.example", "partial.example", "badkey.example", "badurl.example"} {
		_, err = r.Resolve(ctx, domain)
		assert.ErrorIs(t, err, ErrMalformedSupportDocument, "domain %s", domain)
	}
}

func TestResolveLocalHostShortCircuits(t *testing.T) {
	sk, err := key.GenerateDSA(128)
	require.NoError(t, err)
	// a fetcher that fails the test if touched
	fetcher := &fakeFetcher{}
	r := NewResolver(Config{
		Hostname:           "local.example",
		AuthenticationPath: "/browserid/authenticate",
		ProvisioningPath:   "/browserid/provision",
	}, sk.Public(), fetcher, nil)

	details, err := r.Resolve(context.Background(), "local.example")
	require.NoError(t, err)
	assert.Equal(t, "https://local.example/browserid/authenticate", details.Authentication)
	assert.Equal(t, key.Fingerprint(sk.Public()), key.Fingerprint(details.PublicKey))
}

func TestResolveUsesShimTable(t *testing.T) {
	_, keyJSON := testPublicKeyJSON(t)
	shim := ShimTable{
		"shimmed.example": {
			Domain: "shimmed.example",
			Origin: "http://127.0.0.1:10002",
			Body:   []byte(basicDoc(keyJSON)),
		},
	}
	r := NewResolver(Config{}, nil, &fakeFetcher{}, shim)

	details, err := r.Resolve(context.Background(), "shimmed.example")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:10002/auth", details.Authentication)
	assert.Equal(t, "http://127.0.0.1:10002/prov", details.Provisioning)
}

func TestDelegatesAuthority(t *testing.T) {
	_, keyJSON := testPublicKeyJSON(t)
	fetcher := &fakeFetcher{docs: map[string]string{
		wellKnownURL("mail.example"): `{"authority":"idp.example"}`,
		wellKnownURL("idp.example"):  basicDoc(keyJSON),
	}}
	r := NewResolver(Config{}, nil, fetcher, nil)
	ctx := context.Background()

	assert.True(t, r.DelegatesAuthority(ctx, "mail.example", "idp.example"))
	assert.False(t, r.DelegatesAuthority(ctx, "mail.example", "idp.other"))
	// lookup errors are false, never errors
	assert.False(t, r.DelegatesAuthority(ctx, "missing.example", "idp.example"))
}

func TestParseShimEntry(t *testing.T) {
	domain, origin, path, err := ParseShimEntry("Persona.Org|http://127.0.0.1:10002|var/wellknown.json")
	require.NoError(t, err)
	assert.Equal(t, "persona.org", domain)
	assert.Equal(t, "http://127.0.0.1:10002", origin)
	assert.Equal(t, "var/wellknown.json", path)

	_, _, _, err = ParseShimEntry("persona.org|http://x")
	assert.Error(t, err)
	_, _, _, err = ParseShimEntry("a|b|c|d")
	assert.Error(t, err)
}
