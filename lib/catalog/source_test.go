package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venlark/itemwatch/lib/models"
	"go.uber.org/zap"
)

type memCache struct {
	items map[uint64]models.ItemSnapshot
	saves int
}

func (c *memCache) GetItem(ctx context.Context, itemID uint64) (*models.ItemSnapshot, error) {
	if item, ok := c.items[itemID]; ok {
		return &item, nil
	}
	return nil, nil
}

func (c *memCache) SaveItem(ctx context.Context, item models.ItemSnapshot) error {
	c.items[item.ID] = item
	c.saves++
	return nil
}

type stubFetcher struct {
	item    models.ItemSnapshot
	err     error
	fetches int
}

func (f *stubFetcher) Fetch(ctx context.Context, itemID uint64) (models.ItemSnapshot, error) {
	f.fetches++
	if f.err != nil {
		return models.ItemSnapshot{}, f.err
	}
	return f.item, nil
}

func newTestSource(cache *memCache, fetcher *stubFetcher) *Source {
	return &Source{cache: cache, fetcher: fetcher, log: zap.NewNop()}
}

func TestSource_LookupPrefersCache(t *testing.T) {
	cache := &memCache{items: map[uint64]models.ItemSnapshot{
		5: {ID: 5, Name: "cached", UpdatedAt: 100},
	}}
	fetcher := &stubFetcher{}
	source := newTestSource(cache, fetcher)

	item, err := source.Lookup(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "cached", item.Name)
	assert.Zero(t, fetcher.fetches)
}

func TestSource_LookupMissWritesThrough(t *testing.T) {
	cache := &memCache{items: map[uint64]models.ItemSnapshot{}}
	fetcher := &stubFetcher{item: models.ItemSnapshot{ID: 5, Name: "fetched", UpdatedAt: 200}}
	source := newTestSource(cache, fetcher)

	item, err := source.Lookup(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "fetched", item.Name)
	assert.Equal(t, 1, fetcher.fetches)
	assert.Equal(t, 1, cache.saves)

	// Second lookup is served from cache.
	_, err = source.Lookup(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 1, fetcher.fetches)
}

func TestSource_RefreshBypassesCache(t *testing.T) {
	cache := &memCache{items: map[uint64]models.ItemSnapshot{
		5: {ID: 5, Name: "stale", UpdatedAt: 100},
	}}
	fetcher := &stubFetcher{item: models.ItemSnapshot{ID: 5, Name: "fresh", UpdatedAt: 300}}
	source := newTestSource(cache, fetcher)

	item, err := source.Refresh(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "fresh", item.Name)
	assert.Equal(t, 1, fetcher.fetches)
	assert.Equal(t, int64(300), cache.items[5].UpdatedAt)
}

func TestSource_RefreshErrorPropagates(t *testing.T) {
	cache := &memCache{items: map[uint64]models.ItemSnapshot{}}
	fetcher := &stubFetcher{err: errors.New("boom")}
	source := newTestSource(cache, fetcher)

	_, err := source.Refresh(context.Background(), 5)
	require.Error(t, err)
	assert.Zero(t, cache.saves)
}
