// Package testnats starts a throwaway JetStream enabled NATS server for integration tests.
package testnats

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcNats "github.com/testcontainers/testcontainers-go/modules/nats"
)

const NatsImage = "nats:2.11"

// Start runs a NATS container for the lifetime of t and returns its nats:// connection string.
// The test is skipped when no container runtime is reachable.
func Start(t *testing.T) string {
	t.Helper()

	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	natsContainer, err := tcNats.Run(ctx, NatsImage)
	testcontainers.CleanupContainer(t, natsContainer)
	if err != nil {
		t.Fatalf("start nats container: %v", err)
	}

	uri, err := natsContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("nats connection string: %v", err)
	}
	return uri
}
