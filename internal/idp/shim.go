package idp

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ShimEntry preloads a domain's support document. The origin rewrites the
// URL prefix for the document's relative paths; the body is authoritative
// for the document content.
type ShimEntry struct {
	Domain string
	Origin string
	Body   []byte
}

// ShimTable maps domains to preloaded support documents. It is configured at
// startup and never mutated afterwards, so concurrent reads need no locking.
type ShimTable map[string]ShimEntry

// ParseShimEntry parses the "<domain>|<origin>|<path>" entry format.
func ParseShimEntry(raw string) (domain, origin, path string, err error) {
	fields := strings.Split(raw, "|")
	if len(fields) != 3 {
		return "", "", "", fmt.Errorf("shim entry %q: want exactly 3 |-separated fields, got %d", raw, len(fields))
	}
	if fields[0] == "" || fields[1] == "" || fields[2] == "" {
		return "", "", "", fmt.Errorf("shim entry %q: empty field", raw)
	}
	return strings.ToLower(fields[0]), fields[1], fields[2], nil
}

// LoadShimTable parses entries and reads their document bodies. Relative
// body paths are anchored at baseDir.
func LoadShimTable(entries []string, baseDir string) (ShimTable, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	table := make(ShimTable, len(entries))
	for _, raw := range entries {
		domain, origin, path, err := ParseShimEntry(raw)
		if err != nil {
			return nil, err
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		body, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("shim body for %s: %w", domain, err)
		}
		table[domain] = ShimEntry{Domain: domain, Origin: origin, Body: body}
	}
	return table, nil
}
