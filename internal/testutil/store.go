package testutil

import (
	"path/filepath"
	"testing"

	"github.com/roach88/hunt/internal/store"
)

// OpenStore opens a SQLite store in a per-test temp directory and closes it
// on cleanup.
func OpenStore(t testing.TB) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "hunt.db"))
	if err != nil {
		t.Fatalf("store.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}
