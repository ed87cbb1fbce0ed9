package testsupport

import (
	"testing"

	"discdump/internal/config"
	"discdump/internal/resume"
)

// MustOpenStore opens a resume.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *resume.Store {
	t.Helper()

	store, err := resume.Open(cfg)
	if err != nil {
		t.Fatalf("resume.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
