package testutil

import (
	"context"
	"testing"

	"landmash/services/store"
)

// Store opens an in-memory store that already knows markets. It is closed
// when the test finishes.
func Store(t testing.TB, markets ...string) *store.SQLStore {
	t.Helper()

	s, err := store.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	for _, name := range markets {
		err = s.UpsertMarket(context.Background(), store.Market{Name: name})
		if err != nil {
			t.Fatal(err)
		}
	}
	return s
}
