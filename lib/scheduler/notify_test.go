package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/venlark/itemwatch/lib/models"
)

func updatedEntries(n int) []Entry {
	entries := make([]Entry, 0, n)
	for i := 1; i <= n; i++ {
		entries = append(entries, Entry{
			Item: models.ItemSnapshot{ID: uint64(i), Name: fmt.Sprintf("item-%d", i), UpdatedAt: int64(i)},
		})
	}
	return entries
}

func TestDispatch_NoDestinationFailsCycle(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store, newFakeCatalog(), &fakeNotifier{})

	err := s.dispatch(context.Background(), 1, Result{Updated: updatedEntries(1)})
	require.ErrorIs(t, err, ErrNoDestinationConfigured)
}

func TestDispatch_SmallBatchIsOneMessage(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, newFakeCatalog(), notifier)
	store.destinations[1] = "webhook:https://hooks.example.com/1"

	require.NoError(t, s.dispatch(context.Background(), 1, Result{Updated: updatedEntries(3)}))

	batches := notifier.delivered()
	require.Len(t, batches, 1)
	assert.Equal(t, "The following items have been updated:", batches[0].Heading)
	assert.Len(t, batches[0].Entries, 3)
	assert.Len(t, store.advancedMarks(), 3)
}

func TestDispatch_TwelveUpdatesMakeThreeLabelledChunks(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, newFakeCatalog(), notifier)
	store.destinations[1] = "webhook:https://hooks.example.com/1"

	require.NoError(t, s.dispatch(context.Background(), 1, Result{Updated: updatedEntries(12)}))

	batches := notifier.delivered()
	require.Len(t, batches, 3)
	for i, want := range []int{5, 5, 2} {
		assert.Equal(t, fmt.Sprintf("The following items have been updated: Part %d/3", i+1), batches[i].Heading)
		assert.Len(t, batches[i].Entries, want)
	}

	// All 12 marks advanced, in delivery order.
	marks := store.advancedMarks()
	require.Len(t, marks, 12)
	for i, mark := range marks {
		assert.Equal(t, uint64(i+1), mark.itemID)
	}
}

func TestDispatch_FailureOnSecondChunkAdvancesOnlyFirst(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{failOn: 2}
	s := newTestScheduler(store, newFakeCatalog(), notifier)
	store.destinations[1] = "webhook:https://hooks.example.com/1"

	err := s.dispatch(context.Background(), 1, Result{Updated: updatedEntries(12)})
	require.Error(t, err)

	marks := store.advancedMarks()
	require.Len(t, marks, 5)
	for i, mark := range marks {
		assert.Equal(t, uint64(i+1), mark.itemID)
	}
}

func TestDispatch_MarkPersistFailureAbortsRemainingChunks(t *testing.T) {
	store := newFakeStore()
	store.advanceErr = errors.New("disk full")
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, newFakeCatalog(), notifier)
	store.destinations[1] = "webhook:https://hooks.example.com/1"

	err := s.dispatch(context.Background(), 1, Result{Updated: updatedEntries(12)})
	require.Error(t, err)

	// The first chunk's marks failed to persist, so no further chunks go out.
	assert.Len(t, notifier.delivered(), 1)
	assert.Empty(t, store.advancedMarks())
}

func TestDispatch_FailedItemsGetTheirOwnBatch(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, newFakeCatalog(), notifier)
	store.destinations[1] = "webhook:https://hooks.example.com/1"

	result := Result{
		Failed: []Entry{{Item: models.ItemSnapshot{ID: 7, Name: "ghost"}}},
	}
	require.NoError(t, s.dispatch(context.Background(), 1, result))

	batches := notifier.delivered()
	require.Len(t, batches, 1)
	assert.Equal(t, "The following items could not be updated:", batches[0].Heading)
	require.Len(t, batches[0].Entries, 1)
	assert.Equal(t, "ghost, Id: 7", batches[0].Entries[0].Title)

	// Failed items never move the last-notified mark.
	assert.Empty(t, store.advancedMarks())
}

func TestDispatch_NoteCarriedIntoEntry(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, newFakeCatalog(), notifier)
	store.destinations[1] = "webhook:https://hooks.example.com/1"

	note := "pinned by ops"
	result := Result{Updated: []Entry{{
		Item: models.ItemSnapshot{ID: 3, Name: "gamma"},
		Note: &note,
	}}}
	require.NoError(t, s.dispatch(context.Background(), 1, result))

	batches := notifier.delivered()
	require.Len(t, batches, 1)
	assert.Equal(t, "pinned by ops", batches[0].Entries[0].Note)
}

func changedSubscriptions(tenantID uint64, updatedAts ...int64) models.Subscriptions {
	subs := make(models.Subscriptions, 0, len(updatedAts))
	for i, at := range updatedAts {
		itemID := uint64(i + 1)
		subs = append(subs, models.Subscription{
			TenantID: tenantID,
			ItemID:   itemID,
			Item:     models.ItemSnapshot{ID: itemID, Name: fmt.Sprintf("item-%d", itemID), UpdatedAt: at},
		})
	}
	return subs
}

func TestNotifyChangesSince_DeliversWithoutMovingMarks(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, newFakeCatalog(), notifier)
	store.destinations[1] = "webhook:https://hooks.example.com/1"
	store.subs[1] = changedSubscriptions(1, 100, 200, 300)

	count, err := s.NotifyChangesSince(context.Background(), 1, time.Unix(150, 0))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	batches := notifier.delivered()
	require.Len(t, batches, 1)
	assert.Equal(t, "The following items have been updated:", batches[0].Heading)
	assert.Len(t, batches[0].Entries, 2)

	// A replay reports history; it never moves the marks.
	assert.Empty(t, store.advancedMarks())
}

func TestNotifyChangesSince_LargeReplayIsChunked(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, newFakeCatalog(), notifier)
	store.destinations[1] = "webhook:https://hooks.example.com/1"
	store.subs[1] = changedSubscriptions(1, 10, 20, 30, 40, 50, 60, 70)

	count, err := s.NotifyChangesSince(context.Background(), 1, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, 7, count)

	batches := notifier.delivered()
	require.Len(t, batches, 2)
	assert.Equal(t, "The following items have been updated: Part 1/2", batches[0].Heading)
	assert.Equal(t, "The following items have been updated: Part 2/2", batches[1].Heading)
	assert.Empty(t, store.advancedMarks())
}

func TestNotifyChangesSince_NoChangesIsQuiet(t *testing.T) {
	store := newFakeStore()
	notifier := &fakeNotifier{}
	s := newTestScheduler(store, newFakeCatalog(), notifier)
	store.subs[1] = changedSubscriptions(1, 100)

	count, err := s.NotifyChangesSince(context.Background(), 1, time.Unix(500, 0))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, notifier.delivered())
}

func TestNotifyChangesSince_NoDestination(t *testing.T) {
	store := newFakeStore()
	s := newTestScheduler(store, newFakeCatalog(), &fakeNotifier{})
	store.subs[1] = changedSubscriptions(1, 100)

	_, err := s.NotifyChangesSince(context.Background(), 1, time.Unix(0, 0))
	require.ErrorIs(t, err, ErrNoDestinationConfigured)
}
