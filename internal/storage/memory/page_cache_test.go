package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/keiba-crawler/internal/crawler"
)

func TestPageCache(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cache := NewPageCache()
	key := crawler.RaceResultKey("202406010101")

	ok, err := cache.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
	_, err = cache.Read(ctx, key)
	require.ErrorIs(t, err, crawler.ErrNotFound)

	markup := []byte("<html></html>")
	require.NoError(t, cache.Write(ctx, key, markup))
	markup[0] = 'X'

	got, err := cache.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(got))
	assert.Equal(t, 1, cache.Writes())

	require.ErrorIs(t, cache.Write(ctx, crawler.PageKey{}, nil), crawler.ErrInvalidKey)
}
