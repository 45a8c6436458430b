// Package storage contains tests for the in-memory audit store.
package storage

import (
	"context"
	"testing"
	"time"

	"github.com/persona-compat/browserid-go/internal/model"
)

func TestMemoryAppendAndRecent(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, email := range []string{"a@x.example", "b@x.example", "c@x.example"} {
		err := store.Append(ctx, model.AuditEntry{
			Email:    email,
			Audience: "https://rp.example",
			Result:   "okay",
			At:       base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d want 2", len(entries))
	}
	// newest first
	if entries[0].Email != "c@x.example" || entries[1].Email != "b@x.example" {
		t.Fatalf("unexpected order: %s, %s", entries[0].Email, entries[1].Email)
	}

	all, err := store.Recent(ctx, 0)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d want 3", len(all))
	}
}

func TestMemoryEmpty(t *testing.T) {
	store := NewMemory()
	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty log, got %d entries", len(entries))
	}
}
