package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/venlark/itemwatch/lib/models"
)

const (
	updatedHeading = "The following items have been updated:"
	failedHeading  = "The following items could not be updated:"
)

// dispatch resolves the tenant's destination and delivers the detection
// result: updated items first (chunked when large), then failed items as
// their own batch. Last-notified marks advance per confirmed chunk, so a
// mid-batch delivery failure re-delivers at most one chunk next cycle and
// never loses one.
func (s *Scheduler) dispatch(ctx context.Context, tenantID uint64, result Result) error {
	ref, err := s.store.GetDestination(ctx, tenantID)
	if err != nil {
		return err
	}
	if ref == nil {
		return ErrNoDestinationConfigured
	}

	dest, err := models.ParseDestination(*ref)
	if err != nil {
		return err
	}

	if len(result.Updated) == 0 {
		s.log.Sugar().Infow("No updates", "tenant_id", tenantID)
	} else {
		s.log.Sugar().Infow(fmt.Sprintf("Found %d updates", len(result.Updated)), "tenant_id", tenantID)
		if err := s.deliverUpdated(ctx, tenantID, dest, result.Updated); err != nil {
			return err
		}
	}

	if len(result.Failed) > 0 {
		if err := s.notifier.Deliver(ctx, dest, s.failedBatch(result.Failed)); err != nil {
			return fmt.Errorf("deliver failed-items batch: %w", err)
		}
	}

	return nil
}

func (s *Scheduler) deliverUpdated(ctx context.Context, tenantID uint64, dest models.Destination, updated []Entry) error {
	// A chunk's marks may move only once that chunk is confirmed.
	return s.deliverChunked(ctx, dest, updated, func(chunk []Entry) error {
		for _, entry := range chunk {
			if err := s.store.AdvanceLastNotified(ctx, tenantID, entry.Item.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// NotifyChangesSince delivers every tracked item whose snapshot changed after
// the given time to the tenant's destination, through the same chunked
// formatter as a regular cycle. Last-notified marks are left untouched: this
// is a replay, not a detection cycle. Returns the number of items reported.
func (s *Scheduler) NotifyChangesSince(ctx context.Context, tenantID uint64, since time.Time) (int, error) {
	subs, err := s.store.GetChangedSince(ctx, tenantID, since.Unix())
	if err != nil {
		return 0, err
	}
	if len(subs) == 0 {
		return 0, nil
	}

	ref, err := s.store.GetDestination(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if ref == nil {
		return 0, ErrNoDestinationConfigured
	}

	dest, err := models.ParseDestination(*ref)
	if err != nil {
		return 0, err
	}

	entries := make([]Entry, 0, len(subs))
	for _, sub := range subs {
		entries = append(entries, Entry{Item: sub.Item, Note: sub.Note})
	}

	return len(entries), s.deliverChunked(ctx, dest, entries, nil)
}

// deliverChunked sends the entries as one message, or as fixed-size labelled
// parts when there are too many for one. confirmed, when set, runs after
// each successful chunk; its error aborts the remaining chunks.
func (s *Scheduler) deliverChunked(ctx context.Context, dest models.Destination, entries []Entry, confirmed func([]Entry) error) error {
	chunks := chunkEntries(entries, s.chunkSize)
	parts := len(chunks)

	for i, chunk := range chunks {
		heading := updatedHeading
		if parts > 1 {
			heading = fmt.Sprintf("%s Part %d/%d", updatedHeading, i+1, parts)
		}

		if err := s.notifier.Deliver(ctx, dest, s.updatedBatch(heading, chunk)); err != nil {
			return fmt.Errorf("deliver chunk %d/%d: %w", i+1, parts, err)
		}

		if confirmed != nil {
			if err := confirmed(chunk); err != nil {
				return err
			}
		}
	}

	return nil
}

func (s *Scheduler) updatedBatch(heading string, entries []Entry) models.MessageBatch {
	batch := models.MessageBatch{Heading: heading}
	for _, entry := range entries {
		msg := models.MessageEntry{
			Title: entry.Item.Name,
			URL:   s.itemPageURL(entry.Item.ID),
		}
		if entry.Item.PreviewURL != nil {
			msg.ImageURL = *entry.Item.PreviewURL
		}
		if entry.Note != nil {
			msg.Note = *entry.Note
		}
		batch.Entries = append(batch.Entries, msg)
	}
	return batch
}

func (s *Scheduler) failedBatch(entries []Entry) models.MessageBatch {
	batch := models.MessageBatch{Heading: failedHeading}
	for _, entry := range entries {
		batch.Entries = append(batch.Entries, models.MessageEntry{
			Title: fmt.Sprintf("%s, Id: %d", entry.Item.Name, entry.Item.ID),
			URL:   s.itemPageURL(entry.Item.ID),
		})
	}
	return batch
}

func chunkEntries(entries []Entry, size int) [][]Entry {
	var chunks [][]Entry
	for size < len(entries) {
		entries, chunks = entries[size:], append(chunks, entries[:size])
	}
	return append(chunks, entries)
}
