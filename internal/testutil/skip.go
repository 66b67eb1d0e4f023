// Package testutil holds helpers shared by package tests.
package testutil

import (
	"os"
	"testing"
)

// SkipIfNoNetwork skips the test if CHEERFEED_TEST_SKIP_NETWORK is set.
// Use this for tests that listen on loopback sockets, which may not be
// available in sandboxed environments.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("CHEERFEED_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: CHEERFEED_TEST_SKIP_NETWORK is set")
	}
}

// PostgresDSN returns the database used by postgres integration tests and
// skips the test when none is configured.
func PostgresDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("CHEERFEED_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CHEERFEED_TEST_POSTGRES_DSN not set")
	}
	return dsn
}
