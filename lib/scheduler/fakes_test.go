package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/venlark/itemwatch/lib/models"
	"go.uber.org/zap"
)

func newTestScheduler(store Store, cat Catalog, notifier Notifier) *Scheduler {
	return &Scheduler{
		log:           zap.NewNop(),
		store:         store,
		catalog:       cat,
		notifier:      notifier,
		registry:      NewRegistry(),
		chunkSize:     5,
		staggerWindow: time.Millisecond,
		itemPageURL: func(itemID uint64) string {
			return fmt.Sprintf("https://catalog.example.com/items/%d", itemID)
		},
		hourScale: 10 * time.Millisecond,
	}
}

type advancedMark struct {
	tenantID uint64
	itemID   uint64
}

type fakeStore struct {
	mu sync.Mutex

	schedules    map[uint64]uint
	gone         map[uint64]bool
	subs         map[uint64]models.Subscriptions
	destinations map[uint64]string
	lastRan      map[uint64]time.Time
	advanced     []advancedMark

	scheduleErr   error
	setLastRanErr error
	advanceErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		schedules:    make(map[uint64]uint),
		gone:         make(map[uint64]bool),
		subs:         make(map[uint64]models.Subscriptions),
		destinations: make(map[uint64]string),
		lastRan:      make(map[uint64]time.Time),
	}
}

func (f *fakeStore) GetSchedule(ctx context.Context, tenantID uint64) (*uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.scheduleErr != nil {
		return nil, f.scheduleErr
	}
	if hours, ok := f.schedules[tenantID]; ok {
		return &hours, nil
	}
	return nil, nil
}

func (f *fakeStore) GetAllSchedules(ctx context.Context) (models.Tenants, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var tenants models.Tenants
	for tenantID, hours := range f.schedules {
		h := hours
		tenants = append(tenants, models.Tenant{ID: tenantID, ScheduleHours: &h})
	}
	return tenants, nil
}

func (f *fakeStore) CheckStillPresent(ctx context.Context, tenantID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.gone[tenantID], nil
}

func (f *fakeStore) GetSubscriptions(ctx context.Context, tenantID uint64) (models.Subscriptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[tenantID], nil
}

func (f *fakeStore) GetChangedSince(ctx context.Context, tenantID uint64, since int64) (models.Subscriptions, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var changed models.Subscriptions
	for _, sub := range f.subs[tenantID] {
		if sub.Item.UpdatedAt > since {
			changed = append(changed, sub)
		}
	}
	return changed, nil
}

func (f *fakeStore) AdvanceLastNotified(ctx context.Context, tenantID, itemID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.advanceErr != nil {
		return f.advanceErr
	}
	f.advanced = append(f.advanced, advancedMark{tenantID, itemID})
	return nil
}

func (f *fakeStore) GetDestination(ctx context.Context, tenantID uint64) (*string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ref, ok := f.destinations[tenantID]; ok {
		return &ref, nil
	}
	return nil, nil
}

func (f *fakeStore) SetLastRan(ctx context.Context, tenantID uint64, ranAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setLastRanErr != nil {
		return f.setLastRanErr
	}
	f.lastRan[tenantID] = ranAt
	return nil
}

func (f *fakeStore) advancedMarks() []advancedMark {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]advancedMark(nil), f.advanced...)
}

func (f *fakeStore) ranAt(tenantID uint64) (time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.lastRan[tenantID]
	return t, ok
}

type fakeCatalog struct {
	mu sync.Mutex

	cached     map[uint64]models.ItemSnapshot
	fresh      map[uint64]models.ItemSnapshot
	refreshErr map[uint64]error

	lookups   int
	refreshes int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		cached:     make(map[uint64]models.ItemSnapshot),
		fresh:      make(map[uint64]models.ItemSnapshot),
		refreshErr: make(map[uint64]error),
	}
}

func (f *fakeCatalog) Lookup(ctx context.Context, itemID uint64) (models.ItemSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if item, ok := f.cached[itemID]; ok {
		return item, nil
	}
	if item, ok := f.fresh[itemID]; ok {
		return item, nil
	}
	return models.ItemSnapshot{}, fmt.Errorf("no such item: %d", itemID)
}

func (f *fakeCatalog) Refresh(ctx context.Context, itemID uint64) (models.ItemSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if err := f.refreshErr[itemID]; err != nil {
		return models.ItemSnapshot{}, err
	}
	if item, ok := f.fresh[itemID]; ok {
		return item, nil
	}
	return models.ItemSnapshot{}, fmt.Errorf("no such item: %d", itemID)
}

type fakeNotifier struct {
	mu sync.Mutex

	batches []models.MessageBatch
	calls   int
	failOn  int // fail the nth Deliver call, 1-based; 0 never fails
}

func (f *fakeNotifier) Deliver(ctx context.Context, dest models.Destination, batch models.MessageBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failOn != 0 && f.calls == f.failOn {
		return fmt.Errorf("delivery refused")
	}
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeNotifier) delivered() []models.MessageBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.MessageBatch(nil), f.batches...)
}
