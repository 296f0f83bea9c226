package sqlite

import "testing"

// NewTestStore creates a fresh in-memory store with the schema applied.
func NewTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	t.Cleanup(func() { s.Close() })

	return s
}
