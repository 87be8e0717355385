package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/venlark/itemwatch/config"
	"github.com/venlark/itemwatch/lib"
	"github.com/venlark/itemwatch/lib/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service) http.Handler {
	ctrl := &controller{log, svc}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("itemwatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/tenants/{tenant_id}", func(r chi.Router) {
			r.Put("/", ctrl.onboardTenant)
			r.Delete("/", ctrl.offboardTenant)
			r.Get("/", ctrl.tenantSummary)

			r.Put("/schedule", ctrl.setSchedule)
			r.Put("/destination", ctrl.setDestination)

			r.Post("/items", ctrl.addItem)
			r.Post("/items/batch", ctrl.addItems)
			r.Get("/items", ctrl.listItems)
			r.Delete("/items/{item_id}", ctrl.removeItem)
			r.Put("/items/{item_id}/note", ctrl.setNote)

			r.Get("/changes", ctrl.changesSince)

			r.Get("/tracking", ctrl.trackingStatus)
			r.Post("/tracking/restart", ctrl.restartTracking)
			r.Delete("/tracking", ctrl.stopTracking)
		})
	})

	return r
}

type controller struct {
	log *zap.Logger
	svc *lib.Service
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Errorw("Request failed", "err", err)
		return
	} else {
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) onboardTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))
	if tenantID == 0 {
		ctrl.reject(w, 400, errors.New("tenant_id is required"))
		return
	}

	if err := ctrl.svc.OnboardTenant(ctx, tenantID); err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusAccepted, map[string]any{"tenant_id": tenantID})
}

func (ctrl *controller) offboardTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))

	if err := ctrl.svc.OffboardTenant(ctx, tenantID); err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"tenant_id": tenantID})
}

func (ctrl *controller) tenantSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))

	summary, err := ctrl.svc.TenantSummary(ctx, tenantID)
	if err != nil {
		ctrl.reject(w, 404, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, summary)
}

func (ctrl *controller) setSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))

	hours, err := strconv.ParseUint(r.FormValue("hours"), 10, 32)
	if err != nil || hours == 0 {
		ctrl.reject(w, 400, errors.New("hours must be a positive integer"))
		return
	}

	if err := ctrl.svc.SetSchedule(ctx, tenantID, uint(hours)); err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"schedule_hours": hours})
}

func (ctrl *controller) setDestination(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))

	ref := r.FormValue("ref")
	if ref == "" {
		ctrl.reject(w, 400, errors.New("ref is required"))
		return
	}

	if err := ctrl.svc.SetDestination(ctx, tenantID, ref); err != nil {
		ctrl.reject(w, 400, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"destination_ref": ref})
}

func (ctrl *controller) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))

	itemID := parseID(r.FormValue("item_id"))
	if itemID == 0 {
		ctrl.reject(w, 400, errors.New("item_id is required"))
		return
	}

	item, err := ctrl.svc.AddItem(ctx, tenantID, itemID)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, item)
}

func (ctrl *controller) addItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))

	var itemIDs []uint64
	for _, raw := range strings.Split(r.FormValue("item_ids"), ",") {
		if id := parseID(strings.TrimSpace(raw)); id != 0 {
			itemIDs = append(itemIDs, id)
		}
	}
	if len(itemIDs) == 0 {
		ctrl.reject(w, 400, errors.New("item_ids must be a comma-separated list of ids"))
		return
	}

	ctrl.resolve(w, http.StatusOK, ctrl.svc.AddItems(ctx, tenantID, itemIDs))
}

func (ctrl *controller) listItems(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))

	subs, err := ctrl.svc.ListItems(ctx, tenantID)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, subs)
}

func (ctrl *controller) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))
	itemID := parseID(chi.URLParam(r, "item_id"))

	if err := ctrl.svc.RemoveItem(ctx, tenantID, itemID); err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"item_id": itemID})
}

func (ctrl *controller) setNote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))
	itemID := parseID(chi.URLParam(r, "item_id"))

	var note *string
	if v := r.FormValue("note"); v != "" {
		note = &v
	}

	if err := ctrl.svc.SetNote(ctx, tenantID, itemID, note); err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"item_id": itemID})
}

func (ctrl *controller) changesSince(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))

	since, err := parseSince(r.URL.Query().Get("since"))
	if err != nil {
		ctrl.reject(w, 400, err)
		return
	}

	count, err := ctrl.svc.ChangesSince(ctx, tenantID, since)
	if err != nil {
		if errors.Is(err, scheduler.ErrNoDestinationConfigured) || strings.Contains(err.Error(), "in the future") {
			ctrl.reject(w, 400, err)
		} else {
			ctrl.reject(w, 500, err)
		}
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"changes": count})
}

func (ctrl *controller) trackingStatus(w http.ResponseWriter, r *http.Request) {
	tenantID := parseID(chi.URLParam(r, "tenant_id"))
	ctrl.resolve(w, http.StatusOK, map[string]any{"running": ctrl.svc.IsTracking(tenantID)})
}

func (ctrl *controller) restartTracking(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := parseID(chi.URLParam(r, "tenant_id"))

	if err := ctrl.svc.RestartTracking(ctx, tenantID); err != nil {
		if errors.Is(err, scheduler.ErrNoScheduleConfigured) {
			ctrl.reject(w, 400, err)
		} else {
			ctrl.reject(w, 500, err)
		}
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"running": true})
}

func (ctrl *controller) stopTracking(w http.ResponseWriter, r *http.Request) {
	tenantID := parseID(chi.URLParam(r, "tenant_id"))
	ctrl.svc.StopTracking(tenantID)
	ctrl.resolve(w, http.StatusOK, map[string]any{"running": false})
}

func parseID(s string) uint64 {
	u, _ := strconv.ParseUint(s, 10, 64)
	return u
}

var sinceLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseSince(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("since is required")
	}
	for _, layout := range sinceLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date: %q", s)
}
