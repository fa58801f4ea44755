package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/mavenhub/registry/registry/repository"
	"github.com/opencontainers/go-digest"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, repository.InfoCache) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, NewInfoCache(client)
}

func TestInfoCache_Found(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	p := repository.NewRepoPath("central", "org/acme/lib/1.0/lib-1.0.jar")
	res := repository.RepoResource{
		RepoPath:     p,
		Found:        true,
		LastModified: time.Date(2021, 6, 1, 10, 15, 0, 0, time.UTC),
		Size:         1234,
		MetadataOnly: true,
		Digest:       digest.FromString("jar"),
	}
	require.NoError(t, c.Set(ctx, res, time.Minute))

	got, ok, err := c.Get(ctx, p)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, res, got)

	require.Equal(t, time.Minute, mr.TTL("items::"+p.String()))

	mr.FastForward(time.Minute)
	_, ok, err = c.Get(ctx, p)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInfoCache_NotFound(t *testing.T) {
	ctx := context.Background()
	_, c := newTestCache(t)

	p := repository.NewRepoPath("central", "org/acme/missing.jar")

	_, ok, err := c.Get(ctx, p)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, repository.NotFound(p), 30*time.Second))

	got, ok, err := c.Get(ctx, p)
	require.NoError(t, err)
	require.True(t, ok)
	require.False(t, got.Found)
	require.Equal(t, p, got.RepoPath)
}

func TestInfoCache_Overwrite(t *testing.T) {
	ctx := context.Background()
	_, c := newTestCache(t)

	p := repository.NewRepoPath("central", "a.jar")
	require.NoError(t, c.Set(ctx, repository.RepoResource{RepoPath: p, Found: true, Size: 1, Digest: digest.FromString("a")}, time.Minute))
	require.NoError(t, c.Set(ctx, repository.RepoResource{RepoPath: p, Found: true, Size: 2}, time.Minute))

	got, ok, err := c.Get(ctx, p)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, got.Size)
	require.Empty(t, got.Digest)
	require.True(t, got.LastModified.IsZero())
}

func TestInfoCache_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)

	p := repository.NewRepoPath("central", "a.jar")
	mr.HSet("items::"+p.String(), "found", "maybe")

	_, _, err := c.Get(ctx, p)
	require.Error(t, err)
}

func TestInfoCache_Unavailable(t *testing.T) {
	ctx := context.Background()
	mr, c := newTestCache(t)
	mr.Close()

	_, _, err := c.Get(ctx, repository.NewRepoPath("central", "a.jar"))
	require.Error(t, err)
}
