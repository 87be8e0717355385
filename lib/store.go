package lib

import (
	"context"
	"errors"
	"time"

	"github.com/venlark/itemwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store owns all reads and writes of tenant config, subscriptions and cached
// item snapshots.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewStore(lc fx.Lifecycle, db *gorm.DB, log *zap.Logger) *Store {
	return &Store{db, log}
}

// UpsertTenant records a tenant on first contact. Re-adding an existing
// tenant is a no-op.
func (s *Store) UpsertTenant(ctx context.Context, tenantID uint64) error {
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Tenant{ID: tenantID})
	return tx.Error
}

// RemoveTenant deletes the tenant's config and every subscription it owns.
func (s *Store) RemoveTenant(ctx context.Context, tenantID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.Subscription{}, "tenant_id = ?", tenantID).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Tenant{}, "id = ?", tenantID).Error
	})
}

func (s *Store) CheckStillPresent(ctx context.Context, tenantID uint64) (bool, error) {
	var count int64
	tx := s.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", tenantID).Count(&count)
	return count > 0, tx.Error
}

func (s *Store) GetTenant(ctx context.Context, tenantID uint64) (*models.Tenant, error) {
	var tenant models.Tenant
	tx := s.db.WithContext(ctx).First(&tenant, "id = ?", tenantID)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &tenant, tx.Error
}

func (s *Store) SetSchedule(ctx context.Context, tenantID uint64, hours uint) error {
	tx := s.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", tenantID).Update("schedule_hours", hours)
	return tx.Error
}

// GetSchedule returns nil when the tenant has no polling interval configured.
func (s *Store) GetSchedule(ctx context.Context, tenantID uint64) (*uint, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil || tenant == nil {
		return nil, err
	}
	return tenant.ScheduleHours, nil
}

func (s *Store) GetAllSchedules(ctx context.Context) (models.Tenants, error) {
	var tenants models.Tenants
	tx := s.db.WithContext(ctx).Find(&tenants)
	return tenants, tx.Error
}

func (s *Store) SetDestination(ctx context.Context, tenantID uint64, ref string) error {
	tx := s.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", tenantID).Update("destination_ref", ref)
	return tx.Error
}

func (s *Store) GetDestination(ctx context.Context, tenantID uint64) (*string, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil || tenant == nil {
		return nil, err
	}
	return tenant.DestinationRef, nil
}

func (s *Store) SetLastRan(ctx context.Context, tenantID uint64, ranAt time.Time) error {
	tx := s.db.WithContext(ctx).Model(&models.Tenant{}).Where("id = ?", tenantID).Update("last_ran_at", ranAt)
	return tx.Error
}

func (s *Store) GetLastRan(ctx context.Context, tenantID uint64) (*time.Time, error) {
	tenant, err := s.GetTenant(ctx, tenantID)
	if err != nil || tenant == nil {
		return nil, err
	}
	return tenant.LastRanAt, nil
}

// GetSubscriptions returns the tenant's subscriptions with the cached item
// snapshot joined in.
func (s *Store) GetSubscriptions(ctx context.Context, tenantID uint64) (models.Subscriptions, error) {
	var subs models.Subscriptions
	tx := s.db.WithContext(ctx).
		InnerJoins("Item").
		Where("tenant_id = ?", tenantID).
		Find(&subs)
	return subs, tx.Error
}

// GetChangedSince returns the tenant's subscriptions whose cached snapshot
// changed after the given unix time.
func (s *Store) GetChangedSince(ctx context.Context, tenantID uint64, since int64) (models.Subscriptions, error) {
	var subs models.Subscriptions
	tx := s.db.WithContext(ctx).
		InnerJoins("Item").
		Where("tenant_id = ?", tenantID).
		Where("Item.updated_at > ?", since).
		Find(&subs)
	return subs, tx.Error
}

func (s *Store) AddSubscription(ctx context.Context, tenantID, itemID uint64) error {
	sub := &models.Subscription{
		TenantID:       tenantID,
		ItemID:         itemID,
		LastNotifiedAt: time.Now().UTC(),
	}
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(sub)
	return tx.Error
}

func (s *Store) RemoveSubscription(ctx context.Context, tenantID, itemID uint64) error {
	tx := s.db.WithContext(ctx).Delete(&models.Subscription{}, "tenant_id = ? AND item_id = ?", tenantID, itemID)
	return tx.Error
}

func (s *Store) SetNote(ctx context.Context, tenantID, itemID uint64, note *string) error {
	tx := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("tenant_id = ? AND item_id = ?", tenantID, itemID).
		Update("note", note)
	return tx.Error
}

func (s *Store) CountSubscriptions(ctx context.Context, tenantID uint64) (int64, error) {
	var count int64
	tx := s.db.WithContext(ctx).Model(&models.Subscription{}).Where("tenant_id = ?", tenantID).Count(&count)
	return count, tx.Error
}

// AdvanceLastNotified moves the subscription's last-notified mark to now.
// Only called after a delivery referencing the item was confirmed.
func (s *Store) AdvanceLastNotified(ctx context.Context, tenantID, itemID uint64) error {
	tx := s.db.WithContext(ctx).
		Model(&models.Subscription{}).
		Where("tenant_id = ? AND item_id = ?", tenantID, itemID).
		Update("last_notified_at", time.Now().UTC())
	return tx.Error
}

func (s *Store) GetItem(ctx context.Context, itemID uint64) (*models.ItemSnapshot, error) {
	var item models.ItemSnapshot
	tx := s.db.WithContext(ctx).First(&item, "id = ?", itemID)
	if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &item, tx.Error
}

func (s *Store) SaveItem(ctx context.Context, item models.ItemSnapshot) error {
	tx := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&item)
	return tx.Error
}
