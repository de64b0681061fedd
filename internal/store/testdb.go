package store

import (
	"log/slog"
	"testing"
)

// SetupTestDB opens an in-memory store for tests and registers cleanup.
// messageCap <= 0 disables retention trimming.
func SetupTestDB(t *testing.T, messageCap int) *DB {
	t.Helper()
	s, err := OpenInMemory(messageCap, slog.Default())
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
