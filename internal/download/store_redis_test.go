package download

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "sigedoc/pkg/domain"
	"sigedoc/pkg/platform/sentinel"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	grant := Grant{
		DocumentID: id.NewDocumentID(),
		TenantID:   id.NewTenantID(),
		FileURL:    "https://files.example.com/pr-01.pdf",
		IssuedTo:   id.NewUserID(),
	}
	require.NoError(t, store.Put(ctx, "tok", grant, time.Minute))

	got, err := store.Take(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, grant, got)

	// Single use.
	_, err = store.Take(ctx, "tok")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "tok", Grant{FileURL: "x"}, time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Take(ctx, "tok")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRedisStoreUnknownToken(t *testing.T) {
	store, _ := newRedisStore(t)

	_, err := store.Take(context.Background(), "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
