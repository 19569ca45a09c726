package testsupport

import (
	"testing"

	"nativebuild/internal/config"
	"nativebuild/internal/history"
)

// MustOpenHistory opens the history store under cfg's state dir and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config) *history.Store {
	t.Helper()

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
