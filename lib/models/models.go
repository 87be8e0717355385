package models

import (
	"time"
)

// Tenant is one platform guild with its own polling schedule, destination and
// subscription set. ScheduleHours is nil until an operator configures polling.
type Tenant struct {
	ID             uint64 `gorm:"primaryKey;autoIncrement:false"`
	ScheduleHours  *uint
	DestinationRef *string
	LastRanAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Tenants []Tenant

// Subscription ties a tenant to a tracked item. LastNotifiedAt only moves
// forward, and only after a delivery that referenced this item succeeded.
type Subscription struct {
	TenantID       uint64 `gorm:"primaryKey;autoIncrement:false"`
	ItemID         uint64 `gorm:"primaryKey;autoIncrement:false"`
	LastNotifiedAt time.Time
	Note           *string
	CreatedAt      time.Time

	Item ItemSnapshot `gorm:"foreignKey:ItemID;references:ID"`
}

type Subscriptions []Subscription

// ItemSnapshot is the last metadata seen for a catalog item. It is shared by
// every tenant subscribed to the item and refreshed lazily.
type ItemSnapshot struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement:false"`
	Name       string
	UpdatedAt  int64 // unix seconds as reported by the catalog source
	PreviewURL *string
}

type ItemSnapshots []ItemSnapshot
