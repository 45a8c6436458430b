// cmd/verifierd/main_test.go
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/persona-compat/browserid-go/internal/config"
	"github.com/persona-compat/browserid-go/internal/idp"
	"github.com/persona-compat/browserid-go/internal/key"
	"github.com/persona-compat/browserid-go/internal/model"
	"github.com/persona-compat/browserid-go/internal/server"
	"github.com/persona-compat/browserid-go/internal/token"
	"github.com/persona-compat/browserid-go/internal/verify"
)

// This is an integration-style test that wires the same components main()
// uses (file keystore bootstrap, resolver, verifier, memory audit store) but
// runs them under httptest.Server.
func TestVerifierd_Integration(t *testing.T) {
	cfg := config.Config{
		Address:      ":8080",
		Hostname:     "idp.example",
		MasterIdP:    "login.persona.org",
		KeyDir:       t.TempDir(),
		KeyName:      "root",
		AuthPath:     "/browserid/authenticate",
		ProvPath:     "/browserid/provision",
		FetchTimeout: 10 * time.Second,
		AuditBackend: "memory",
	}

	keys, err := loadOrBootstrapKeys(cfg, slog.Default())
	if err != nil {
		t.Fatalf("bootstrap keys: %v", err)
	}
	// a second load must find the persisted pair
	reloaded, err := idp.LoadFileKeyStore(cfg.KeyDir, cfg.KeyName)
	if err != nil {
		t.Fatalf("reload keys: %v", err)
	}
	if key.Fingerprint(reloaded.PublicKey()) != key.Fingerprint(keys.PublicKey()) {
		t.Fatalf("reloaded key differs from bootstrapped key")
	}

	store, err := newAuditStore(cfg)
	if err != nil {
		t.Fatalf("audit store: %v", err)
	}
	resolver := idp.NewResolver(idp.Config{
		Hostname:           cfg.Hostname,
		AuthenticationPath: cfg.AuthPath,
		ProvisioningPath:   cfg.ProvPath,
	}, keys.PublicKey(), idp.NewHTTPFetcher(cfg.FetchTimeout), nil)
	verifier := verify.New(resolver, cfg.Hostname, cfg.MasterIdP)

	h := server.New(cfg, verifier, keys, store, slog.Default())
	ts := httptest.NewServer(h.Router())
	defer ts.Close()

	// Health
	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("health request error: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Issue a certificate with the bootstrapped key and verify an assertion
	userKey, err := key.GenerateDSA(128)
	if err != nil {
		t.Fatalf("generate user key: %v", err)
	}
	now := time.Now().UnixMilli()
	cert, err := token.SignCert(cfg.Hostname, token.Principal{Email: "alice@idp.example"}, userKey.Public(), now-60_000, now+3_600_000, keys.SecretKey())
	if err != nil {
		t.Fatalf("sign cert: %v", err)
	}
	assertion, err := token.SignAssertion("https://rp.example", now+1_800_000, userKey)
	if err != nil {
		t.Fatalf("sign assertion: %v", err)
	}

	form := url.Values{
		"assertion": {token.JoinBundle([]string{cert}, assertion)},
		"audience":  {"https://rp.example"},
	}
	resp, err = http.Post(ts.URL+"/verify", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("verify request error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("verify status = %d", resp.StatusCode)
	}
	var out model.VerifyResponseDTO
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode verify response: %v", err)
	}
	if out.Status != "okay" {
		t.Fatalf("status = %q reason = %q", out.Status, out.Reason)
	}
	if out.Email != "alice@idp.example" {
		t.Fatalf("email = %q", out.Email)
	}

	// The audit log captured the verification
	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("audit recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Result != "okay" {
		t.Fatalf("unexpected audit entries: %+v", entries)
	}
}
