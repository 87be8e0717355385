package catalog

import (
	"context"

	"github.com/venlark/itemwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ItemCache is the snapshot cache backing cached lookups, shared by all
// tenants tracking the same item.
type ItemCache interface {
	GetItem(ctx context.Context, itemID uint64) (*models.ItemSnapshot, error)
	SaveItem(ctx context.Context, item models.ItemSnapshot) error
}

// Fetcher is the authoritative catalog call.
type Fetcher interface {
	Fetch(ctx context.Context, itemID uint64) (models.ItemSnapshot, error)
}

// Source resolves items cache-first, falling back to the catalog source and
// writing fetched snapshots through to the cache.
type Source struct {
	cache   ItemCache
	fetcher Fetcher
	log     *zap.Logger
}

func NewSource(lc fx.Lifecycle, cache ItemCache, fetcher *Client, log *zap.Logger) *Source {
	return &Source{cache: cache, fetcher: fetcher, log: log}
}

// Lookup consults the cache; on a miss it calls the catalog source and
// writes the result through.
func (s *Source) Lookup(ctx context.Context, itemID uint64) (models.ItemSnapshot, error) {
	if cached, err := s.cache.GetItem(ctx, itemID); err == nil && cached != nil {
		s.log.Sugar().Debugw("Item cache hit", "item_id", itemID)
		return *cached, nil
	}

	return s.Refresh(ctx, itemID)
}

// Refresh bypasses the cache, fetching from the catalog source and updating
// the cached snapshot. A stale cache entry is never taken as proof of "no
// change", so ambiguous detections re-check through here.
func (s *Source) Refresh(ctx context.Context, itemID uint64) (models.ItemSnapshot, error) {
	item, err := s.fetcher.Fetch(ctx, itemID)
	if err != nil {
		return models.ItemSnapshot{}, err
	}

	if err := s.cache.SaveItem(ctx, item); err != nil {
		s.log.Sugar().Errorw("Failed to cache item snapshot", "item_id", itemID, "err", err)
		return models.ItemSnapshot{}, err
	}

	return item, nil
}
