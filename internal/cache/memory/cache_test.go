package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prn-tf/alexander-library/internal/repository"
)

func TestCache(t *testing.T) {
	ctx := context.Background()
	c := NewCache(time.Minute)
	t.Cleanup(c.Stop)

	key := repository.CacheKeys.Category(3)

	_, err := c.Get(ctx, key)
	assert.ErrorIs(t, err, repository.ErrCacheMiss)

	value := []byte(`{"name":"Fiction"}`)
	require.NoError(t, c.Set(ctx, key, value, 0))
	value[0] = 'X'

	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Fiction"}`, string(got), "stored value must not alias the caller's slice")

	got[0] = 'Y'
	again, err := c.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, byte('{'), again[0])

	require.NoError(t, c.Delete(ctx, key))
	require.NoError(t, c.Delete(ctx, key))
	_, err = c.Get(ctx, key)
	assert.ErrorIs(t, err, repository.ErrCacheMiss)
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewCache(5 * time.Millisecond)
	t.Cleanup(c.Stop)

	require.NoError(t, c.Set(ctx, "short", []byte("v"), 10*time.Millisecond))
	require.NoError(t, c.Set(ctx, "forever", []byte("v"), 0))

	assert.Eventually(t, func() bool {
		_, err := c.Get(ctx, "short")
		return err == repository.ErrCacheMiss && c.Len() == 1
	}, time.Second, 5*time.Millisecond)

	_, err := c.Get(ctx, "forever")
	assert.NoError(t, err)
}
