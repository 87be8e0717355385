package lib

import (
	"context"
	"fmt"
	"time"

	"github.com/venlark/itemwatch/config"
	"github.com/venlark/itemwatch/lib/catalog"
	"github.com/venlark/itemwatch/lib/models"
	"github.com/venlark/itemwatch/lib/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Service backs the command surface: tenant lifecycle, tracked-item CRUD and
// tracking control.
type Service struct {
	cfg     *config.Config
	log     *zap.Logger
	store   *Store
	catalog *catalog.Source
	sched   *scheduler.Scheduler
}

func NewService(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, store *Store, source *catalog.Source, sched *scheduler.Scheduler) *Service {
	return &Service{cfg, log, store, source, sched}
}

func (svc *Service) OnboardTenant(ctx context.Context, tenantID uint64) error {
	if err := svc.store.UpsertTenant(ctx, tenantID); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Tenant onboarded", "tenant_id", tenantID)
	return nil
}

// OffboardTenant handles the tenant's platform membership ending: its job is
// cancelled and its config deleted.
func (svc *Service) OffboardTenant(ctx context.Context, tenantID uint64) error {
	svc.sched.Stop(tenantID)
	if err := svc.store.RemoveTenant(ctx, tenantID); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Tenant offboarded", "tenant_id", tenantID)
	return nil
}

// SetSchedule stores the polling interval and restarts the tenant's job so
// the new interval takes effect immediately.
func (svc *Service) SetSchedule(ctx context.Context, tenantID uint64, hours uint) error {
	if hours == 0 {
		return fmt.Errorf("schedule must be at least 1 hour")
	}
	if err := svc.store.SetSchedule(ctx, tenantID, hours); err != nil {
		return err
	}
	return svc.sched.StartOrRestart(ctx, tenantID)
}

func (svc *Service) SetDestination(ctx context.Context, tenantID uint64, ref string) error {
	if _, err := models.ParseDestination(ref); err != nil {
		return err
	}
	return svc.store.SetDestination(ctx, tenantID, ref)
}

// AddItem validates the item against the catalog before subscribing, and
// returns the fetched snapshot so the caller can confirm what it subscribed
// to.
func (svc *Service) AddItem(ctx context.Context, tenantID, itemID uint64) (*models.ItemSnapshot, error) {
	item, err := svc.catalog.Lookup(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("fetching item %d: %w", itemID, err)
	}

	if err := svc.store.AddSubscription(ctx, tenantID, item.ID); err != nil {
		return nil, err
	}

	svc.log.Sugar().Infow("Added tracked item", "tenant_id", tenantID, "item_id", itemID, "name", item.Name)
	return &item, nil
}

// BatchAddResult reports one id's outcome from a batch add.
type BatchAddResult struct {
	ItemID uint64  `json:"item_id"`
	Name   string  `json:"name,omitempty"`
	Error  *string `json:"error,omitempty"`
}

// AddItems subscribes to each id independently; one failure does not abort
// the rest.
func (svc *Service) AddItems(ctx context.Context, tenantID uint64, itemIDs []uint64) []BatchAddResult {
	results := make([]BatchAddResult, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		item, err := svc.AddItem(ctx, tenantID, itemID)
		result := BatchAddResult{ItemID: itemID}
		if err != nil {
			msg := err.Error()
			result.Error = &msg
		} else {
			result.Name = item.Name
		}
		results = append(results, result)
	}
	return results
}

func (svc *Service) RemoveItem(ctx context.Context, tenantID, itemID uint64) error {
	if err := svc.store.RemoveSubscription(ctx, tenantID, itemID); err != nil {
		return err
	}
	svc.log.Sugar().Infow("Removed tracked item", "tenant_id", tenantID, "item_id", itemID)
	return nil
}

func (svc *Service) ListItems(ctx context.Context, tenantID uint64) (models.Subscriptions, error) {
	return svc.store.GetSubscriptions(ctx, tenantID)
}

func (svc *Service) SetNote(ctx context.Context, tenantID, itemID uint64, note *string) error {
	return svc.store.SetNote(ctx, tenantID, itemID, note)
}

// Summary is the tenant's current tracking configuration at a glance.
type Summary struct {
	TenantID       uint64  `json:"tenant_id"`
	ScheduleHours  *uint   `json:"schedule_hours"`
	DestinationRef *string `json:"destination_ref"`
	LastRanAt      *string `json:"last_ran_at"`
	Subscriptions  int64   `json:"subscriptions"`
	Running        bool    `json:"running"`
}

func (svc *Service) TenantSummary(ctx context.Context, tenantID uint64) (*Summary, error) {
	tenant, err := svc.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, fmt.Errorf("unknown tenant: %d", tenantID)
	}

	count, err := svc.store.CountSubscriptions(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		TenantID:       tenant.ID,
		ScheduleHours:  tenant.ScheduleHours,
		DestinationRef: tenant.DestinationRef,
		Subscriptions:  count,
		Running:        svc.sched.IsRunning(tenantID),
	}
	if tenant.LastRanAt != nil {
		formatted := tenant.LastRanAt.UTC().Format("2006-01-02 15:04:05 MST")
		summary.LastRanAt = &formatted
	}
	return summary, nil
}

// ChangesSince replays every update recorded after the given time to the
// tenant's destination, without touching the last-notified marks. Returns
// the number of items reported.
func (svc *Service) ChangesSince(ctx context.Context, tenantID uint64, since time.Time) (int, error) {
	if since.After(time.Now()) {
		return 0, fmt.Errorf("%s is in the future", since.Format("2006-01-02"))
	}
	count, err := svc.sched.NotifyChangesSince(ctx, tenantID, since)
	if err != nil {
		return 0, err
	}
	svc.log.Sugar().Infow("Replayed changes", "tenant_id", tenantID, "since", since, "count", count)
	return count, nil
}

func (svc *Service) RestartTracking(ctx context.Context, tenantID uint64) error {
	return svc.sched.StartOrRestart(ctx, tenantID)
}

// StopTracking is idempotent: stopping an already-stopped tenant is a no-op.
func (svc *Service) StopTracking(tenantID uint64) {
	svc.sched.Stop(tenantID)
}

func (svc *Service) IsTracking(tenantID uint64) bool {
	return svc.sched.IsRunning(tenantID)
}
