package testutil

import "testing"

func TestPostgresDSNReturnsConfiguredValue(t *testing.T) {
	t.Setenv("CHEERFEED_TEST_POSTGRES_DSN", "postgres://localhost/cheerfeed")
	if got := PostgresDSN(t); got != "postgres://localhost/cheerfeed" {
		t.Fatalf("PostgresDSN = %q", got)
	}
}

func TestSkipIfNoNetworkRunsByDefault(t *testing.T) {
	t.Setenv("CHEERFEED_TEST_SKIP_NETWORK", "")
	SkipIfNoNetwork(t)
}
