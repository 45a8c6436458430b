package token

import (
	"errors"
	"strings"
)

// ErrNoCertificates is returned for a bundle that carries an assertion with
// no certificate in front of it.
var ErrNoCertificates = errors.New("no certificates provided")

// Bundle is the parsed wire form cert1~cert2~...~certN~signedAssertion. The
// trailing segment is always the assertion; every preceding segment is a
// certificate. Segments are kept raw; parsing and verification happen in the
// chain layer.
type Bundle struct {
	Certs     []string
	Assertion string
}

// Unbundle splits the ~-separated wire form.
func Unbundle(blob string) (*Bundle, error) {
	parts := strings.Split(blob, "~")
	if len(parts) < 2 {
		return nil, ErrNoCertificates
	}
	return &Bundle{
		Certs:     parts[:len(parts)-1],
		Assertion: parts[len(parts)-1],
	}, nil
}

// JoinBundle assembles the wire form from raw segments.
func JoinBundle(certs []string, assertion string) string {
	return strings.Join(append(append([]string(nil), certs...), assertion), "~")
}
