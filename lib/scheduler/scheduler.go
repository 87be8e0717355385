package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/venlark/itemwatch/config"
	"github.com/venlark/itemwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	ErrNoScheduleConfigured    = errors.New("no schedule configured for this tenant")
	ErrNoDestinationConfigured = errors.New("no destination configured for this tenant")
)

// Store is the slice of the subscription store the scheduler consumes.
type Store interface {
	GetSchedule(ctx context.Context, tenantID uint64) (*uint, error)
	GetAllSchedules(ctx context.Context) (models.Tenants, error)
	CheckStillPresent(ctx context.Context, tenantID uint64) (bool, error)
	GetSubscriptions(ctx context.Context, tenantID uint64) (models.Subscriptions, error)
	GetChangedSince(ctx context.Context, tenantID uint64, since int64) (models.Subscriptions, error)
	AdvanceLastNotified(ctx context.Context, tenantID, itemID uint64) error
	GetDestination(ctx context.Context, tenantID uint64) (*string, error)
	SetLastRan(ctx context.Context, tenantID uint64, ranAt time.Time) error
}

// Catalog resolves item metadata, cache-first or forced.
type Catalog interface {
	Lookup(ctx context.Context, itemID uint64) (models.ItemSnapshot, error)
	Refresh(ctx context.Context, itemID uint64) (models.ItemSnapshot, error)
}

// Notifier renders and delivers one message batch to a destination.
type Notifier interface {
	Deliver(ctx context.Context, dest models.Destination, batch models.MessageBatch) error
}

// Scheduler owns one recurring tracking job per tenant.
type Scheduler struct {
	log      *zap.Logger
	store    Store
	catalog  Catalog
	notifier Notifier
	registry *Registry

	chunkSize     int
	staggerWindow time.Duration
	itemPageURL   func(itemID uint64) string

	// hourScale converts a tenant's configured hours into a wall duration.
	// time.Hour outside tests.
	hourScale time.Duration
}

func NewScheduler(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, store Store, catalog Catalog, notifier Notifier) *Scheduler {
	s := &Scheduler{
		log:           log,
		store:         store,
		catalog:       catalog,
		notifier:      notifier,
		registry:      NewRegistry(),
		chunkSize:     5,
		staggerWindow: cfg.BootstrapStagger(),
		itemPageURL:   cfg.ItemPageURL,
		hourScale:     time.Hour,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := s.Bootstrap(context.Background()); err != nil {
					log.Sugar().Errorw("Bootstrap failed", "err", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Sugar().Info("Stopping all tracking jobs")
			s.registry.StopAll()
			return nil
		},
	})

	return s
}

// Bootstrap starts a job for every tenant with a configured interval. Starts
// are spread evenly across the stagger window so the external platform is
// not hit with a burst of registrations.
func (s *Scheduler) Bootstrap(ctx context.Context) error {
	tenants, err := s.store.GetAllSchedules(ctx)
	if err != nil {
		return err
	}

	scheduled := 0
	for _, t := range tenants {
		if t.ScheduleHours != nil {
			scheduled++
		}
	}
	s.log.Sugar().Infof("Starting %d tracking jobs", scheduled)

	var stagger time.Duration
	if len(tenants) > 0 {
		stagger = s.staggerWindow / time.Duration(len(tenants))
	}

	for _, t := range tenants {
		if t.ScheduleHours == nil {
			continue
		}
		s.startJob(t.ID, *t.ScheduleHours)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(stagger):
		}
	}

	s.log.Sugar().Info("Started all tracking jobs")
	return nil
}

// StartOrRestart launches the tenant's recurring job, replacing any running
// one. Fails if the tenant has no interval configured.
func (s *Scheduler) StartOrRestart(ctx context.Context, tenantID uint64) error {
	hours, err := s.store.GetSchedule(ctx, tenantID)
	if err != nil {
		return err
	}
	if hours == nil {
		return ErrNoScheduleConfigured
	}

	s.startJob(tenantID, *hours)
	return nil
}

// Stop cancels and removes the tenant's job. Idempotent.
func (s *Scheduler) Stop(tenantID uint64) {
	s.log.Sugar().Infow("Removing tracking job", "tenant_id", tenantID)
	s.registry.Remove(tenantID)
}

func (s *Scheduler) IsRunning(tenantID uint64) bool {
	return s.registry.IsRunning(tenantID)
}

func (s *Scheduler) startJob(tenantID uint64, hours uint) {
	ctx, cancel := context.WithCancel(context.Background())
	j := &job{tenantID: tenantID, cancel: cancel}
	s.registry.Register(tenantID, j)

	go func() {
		defer s.registry.Deregister(j)

		if err := s.workLoop(ctx, tenantID, hours); err != nil {
			s.log.Sugar().Errorw("Tracking job failed", "tenant_id", tenantID, "err", err)
		}
	}()
}

// workLoop runs the tenant's recurring tick until cancelled, the tenant
// leaves the platform, or a cycle errors out. The first tick fires only
// after one full interval; subsequent ticks are scheduled relative to the
// completion of the previous one, so a stalled cycle never causes a burst
// of queued ticks.
func (s *Scheduler) workLoop(ctx context.Context, tenantID uint64, hours uint) error {
	s.log.Sugar().Infow("Starting tracking job", "tenant_id", tenantID, "interval_hours", hours)

	interval := time.Duration(hours) * s.hourScale
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		present, err := s.store.CheckStillPresent(ctx, tenantID)
		if err != nil {
			return err
		}
		if !present {
			// Normal termination, not a failure.
			s.log.Sugar().Warnw("Tenant no longer present, stopping tracking job", "tenant_id", tenantID)
			return nil
		}

		if err := s.runCycle(ctx, tenantID); err != nil {
			return err
		}

		if err := s.store.SetLastRan(ctx, tenantID, time.Now().UTC()); err != nil {
			return err
		}

		timer.Reset(interval)
	}
}

func (s *Scheduler) runCycle(ctx context.Context, tenantID uint64) error {
	result, err := s.detectChanges(ctx, tenantID)
	if err != nil {
		return err
	}
	return s.dispatch(ctx, tenantID, result)
}
