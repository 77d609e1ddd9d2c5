// Package testvalkey starts a throwaway Valkey server for integration tests.
package testvalkey

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcValKey "github.com/testcontainers/testcontainers-go/modules/valkey"
)

const ValKeyImage = "docker.io/valkey/valkey:8"

// Start runs a Valkey container for the lifetime of t and returns its redis:// connection string.
// The test is skipped when no container runtime is reachable.
func Start(t *testing.T) string {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	valkeyContainer, err := tcValKey.Run(ctx, ValKeyImage)
	testcontainers.CleanupContainer(t, valkeyContainer)
	if err != nil {
		t.Fatalf("start valkey container: %v", err)
	}

	uri, err := valkeyContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("valkey connection string: %v", err)
	}
	return uri
}
