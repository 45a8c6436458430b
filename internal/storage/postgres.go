// Package storage: PostgreSQL implementation of the audit store.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver

	"github.com/persona-compat/browserid-go/internal/model"
)

// postgres implements AuditStore on a pooled database/sql connection.
type postgres struct {
	db *sql.DB
}

// Applied one statement at a time: the pgx driver's extended protocol does
// not accept multi-statement batches.
var auditSchema = []string{
	`CREATE TABLE IF NOT EXISTS verification_audit (
		id       BIGSERIAL PRIMARY KEY,
		email    TEXT NOT NULL DEFAULT '',
		audience TEXT NOT NULL DEFAULT '',
		issuer   TEXT NOT NULL DEFAULT '',
		result   TEXT NOT NULL,
		reason   TEXT NOT NULL DEFAULT '',
		at       TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS verification_audit_at_idx ON verification_audit (at DESC)`,
}

// NewPostgres creates an AuditStore backed by PostgreSQL, applying the
// schema and testing connectivity before returning.
func NewPostgres(dsn string) (AuditStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	for _, stmt := range auditSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply audit schema: %w", err)
		}
	}
	return &postgres{db: db}, nil
}

// DB exposes the underlying pool for readiness pings.
func (p *postgres) DB() *sql.DB { return p.db }

func (p *postgres) Append(ctx context.Context, entry model.AuditEntry) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO verification_audit (email, audience, issuer, result, reason, at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.Email, entry.Audience, entry.Issuer, entry.Result, entry.Reason, entry.At,
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (p *postgres) Recent(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx,
		`SELECT email, audience, issuer, result, reason, at
		 FROM verification_audit ORDER BY at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var entry model.AuditEntry
		if err := rows.Scan(&entry.Email, &entry.Audience, &entry.Issuer, &entry.Result, &entry.Reason, &entry.At); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
