package verify

import (
	"fmt"
	"net/url"
	"strings"
)

// audienceParts is an RP-supplied audience in one of its three accepted
// forms. Fields the RP did not specify stay unset and are not compared.
type audienceParts struct {
	scheme    string
	host      string
	port      string
	hasScheme bool
	hasPort   bool
}

func defaultPort(scheme string) string {
	if scheme == "https" {
		return "443"
	}
	return "80"
}

// parseRPAudience accepts a full origin, a host:port pair, or a bare host.
func parseRPAudience(s string) (audienceParts, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return audienceParts{}, fmt.Errorf("empty audience")
	}
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return audienceParts{}, fmt.Errorf("audience is not an origin: %w", err)
		}
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return audienceParts{}, fmt.Errorf("audience scheme %q is not http(s)", u.Scheme)
		}
		if u.Hostname() == "" {
			return audienceParts{}, fmt.Errorf("audience has no host")
		}
		port := u.Port()
		if port == "" {
			port = defaultPort(scheme)
		}
		return audienceParts{
			scheme:    scheme,
			host:      strings.ToLower(u.Hostname()),
			port:      port,
			hasScheme: true,
			hasPort:   true,
		}, nil
	}
	if host, port, ok := strings.Cut(s, ":"); ok {
		if host == "" || port == "" || strings.Contains(port, "/") {
			return audienceParts{}, fmt.Errorf("audience %q is not host:port", s)
		}
		return audienceParts{host: strings.ToLower(host), port: port, hasPort: true}, nil
	}
	return audienceParts{host: strings.ToLower(s)}, nil
}

// parseWantAudience parses the assertion's aud claim, which must be a full
// origin; a missing port is normalised from the scheme.
func parseWantAudience(s string) (audienceParts, error) {
	parts, err := parseRPAudience(s)
	if err != nil {
		return audienceParts{}, err
	}
	if !parts.hasScheme {
		return audienceParts{}, fmt.Errorf("assertion audience %q is not a full origin", s)
	}
	return parts, nil
}

// matchAudience compares every field the RP specified against the
// assertion's audience. The first differing field names the sub-reason.
func matchAudience(got, want audienceParts) *Error {
	if got.hasScheme && got.scheme != want.scheme {
		return audienceMismatch("scheme")
	}
	if got.host != want.host {
		return audienceMismatch("domain")
	}
	if got.hasPort && got.port != want.port {
		return audienceMismatch("port")
	}
	return nil
}
