package scheduler

import (
	"context"

	"github.com/venlark/itemwatch/lib/models"
)

// Entry is one subscription's item carried through detection into dispatch.
type Entry struct {
	Item models.ItemSnapshot
	Note *string
}

// Result partitions a tenant's subscriptions after a detection pass. Items
// in neither list are unchanged and need no action.
type Result struct {
	Updated []Entry
	Failed  []Entry
}

// detectChanges runs the two-pass detection over the tenant's subscriptions.
// Pass one resolves each item cache-first and tentatively classifies by
// comparing the authoritative updated-at against the subscription's
// last-notified mark. Pass two force-refetches only the ambiguous items, so
// a lagging cache can never mask a real change; items whose forced fetch
// also fails are reported as failed.
func (s *Scheduler) detectChanges(ctx context.Context, tenantID uint64) (Result, error) {
	subs, err := s.store.GetSubscriptions(ctx, tenantID)
	if err != nil {
		return Result{}, err
	}

	var result Result
	var unknown models.Subscriptions

	for _, sub := range subs {
		item, err := s.catalog.Lookup(ctx, sub.ItemID)
		if err != nil {
			return Result{}, err
		}

		if item.UpdatedAt > sub.LastNotifiedAt.Unix() {
			result.Updated = append(result.Updated, Entry{Item: item, Note: sub.Note})
		} else {
			unknown = append(unknown, sub)
		}
	}

	for _, sub := range unknown {
		item, err := s.catalog.Refresh(ctx, sub.ItemID)
		if err != nil {
			s.log.Sugar().Warnw("Forced refetch failed", "tenant_id", tenantID, "item_id", sub.ItemID, "err", err)
			result.Failed = append(result.Failed, Entry{Item: sub.Item, Note: sub.Note})
			continue
		}

		if item.UpdatedAt > sub.LastNotifiedAt.Unix() {
			result.Updated = append(result.Updated, Entry{Item: item, Note: sub.Note})
		}
	}

	return result, nil
}
