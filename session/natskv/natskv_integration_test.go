package natskv_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tjddyd55-crypto/global-audition/internal/testdeps/testnats"
	"github.com/tjddyd55-crypto/global-audition/session"
	"github.com/tjddyd55-crypto/global-audition/session/natskv"
)

func TestStoreAcrossConnections(t *testing.T) {
	dsn := testnats.Start(t)

	writer, err := natskv.New(dsn, "ga-test")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, writer.Close()) })

	reader, err := natskv.New(dsn, "ga-test")
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, reader.Close()) })

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	changes, err := session.Scope(reader, "visitor").Watch(ctx)
	require.NoError(t, err)

	store := session.Scope(writer, "visitor")
	_, ok, err := store.Get(ctx, session.TokenKey)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Set(ctx, session.TokenKey, "tok"))
	select {
	case change := <-changes:
		require.Equal(t, session.Change{Key: session.TokenKey, Value: "tok"}, change)
	case <-time.After(5 * time.Second):
		t.Fatal("set was not observed")
	}

	value, ok, err := reader.Get(ctx, "visitor."+session.TokenKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "tok", value)

	require.NoError(t, store.Delete(ctx, session.TokenKey))
	select {
	case change := <-changes:
		require.Equal(t, session.Change{Key: session.TokenKey, Deleted: true}, change)
	case <-time.After(5 * time.Second):
		t.Fatal("delete was not observed")
	}

	// Deleting a missing key is a no-op.
	require.NoError(t, store.Delete(ctx, session.TokenKey))
}
