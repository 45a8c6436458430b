// Package storage provides the verification audit log: an append-only
// record of every verification the service performs, with in-memory and
// PostgreSQL backends behind one interface.
package storage

import (
	"context"
	"errors"

	"github.com/persona-compat/browserid-go/internal/model"
)

// ErrNotFound indicates the requested resource does not exist.
var ErrNotFound = errors.New("not found")

// AuditStore captures the append-only verification history. Implementations
// must be safe for concurrent use.
type AuditStore interface {
	// Append adds an entry to the audit log.
	Append(ctx context.Context, entry model.AuditEntry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]model.AuditEntry, error)
}
