package http

import (
	"testing"
	"time"

	"github.com/vovakirdan/watchparty-server/internal/auth"
	"github.com/vovakirdan/watchparty-server/internal/store"
	"github.com/vovakirdan/watchparty-server/internal/store/sqlite"
)

// createTestStore creates an in-memory SQLite store with migrations applied.
func createTestStore(t *testing.T) store.Store {
	t.Helper()

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	return st
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.UserStore, jwtSecret string) *auth.Service {
	t.Helper()

	jwtConfig := &auth.JWTConfig{
		Secret:   []byte(jwtSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      24 * time.Hour,
	}

	return auth.NewService(st, jwtConfig)
}
