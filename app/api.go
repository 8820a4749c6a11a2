package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/regwatch/regwatch/config"
	"github.com/regwatch/regwatch/lib"
	"github.com/regwatch/regwatch/lib/models"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service) *http.Server {
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
			r.Use(middleware.BasicAuth("regwatch", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Route("/targets", func(r chi.Router) {
			r.Post("/", ctrl.createTarget)
			r.Get("/", ctrl.listTargets)
			r.Post("/{target_id}/pause", ctrl.pauseTarget)
			r.Post("/{target_id}/resume", ctrl.resumeTarget)
			r.Post("/{target_id}/deactivate", ctrl.deactivateTarget)
			r.Post("/{target_id}/check", ctrl.checkNow)
			r.Get("/{target_id}/sessions", ctrl.listSessions)
			r.Get("/{target_id}/analyses", ctrl.listAnalyses)
			r.Get("/{target_id}/snapshot", ctrl.viewSnapshot)
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
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write(b)
	}
}

func (ctrl *controller) createTarget(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	url := r.FormValue("url")
	name := r.FormValue("name")
	priority := models.Priority(r.FormValue("priority"))
	interval := parseInt(r.FormValue("interval_minutes"))

	if url == "" {
		ctrl.reject(w, 400, errors.New("url is required"))
		return
	}

	target, err := ctrl.svc.CreateTarget(ctx, url, name, priority, int(interval))
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, TargetView{}.From(target))
}

func (ctrl *controller) listTargets(w http.ResponseWriter, r *http.Request) {
	targets, err := ctrl.svc.ListTargets(r.Context())
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, FromMany[*models.Target, TargetView](targets))
}

func (ctrl *controller) pauseTarget(w http.ResponseWriter, r *http.Request) {
	ctrl.setPaused(w, r, true)
}

func (ctrl *controller) resumeTarget(w http.ResponseWriter, r *http.Request) {
	ctrl.setPaused(w, r, false)
}

func (ctrl *controller) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	targetID := parseInt(chi.URLParam(r, "target_id"))

	target, err := ctrl.svc.SetPaused(r.Context(), targetID, paused)
	if err != nil {
		ctrl.rejectForError(w, err)
		return
	}
	ctrl.resolve(w, 200, TargetView{}.From(target))
}

func (ctrl *controller) deactivateTarget(w http.ResponseWriter, r *http.Request) {
	targetID := parseInt(chi.URLParam(r, "target_id"))

	target, err := ctrl.svc.Deactivate(r.Context(), targetID)
	if err != nil {
		ctrl.rejectForError(w, err)
		return
	}
	ctrl.resolve(w, 200, TargetView{}.From(target))
}

func (ctrl *controller) checkNow(w http.ResponseWriter, r *http.Request) {
	targetID := parseInt(chi.URLParam(r, "target_id"))

	admitted, err := ctrl.svc.CheckNow(r.Context(), targetID)
	if err != nil {
		ctrl.rejectForError(w, err)
		return
	}
	if !admitted {
		ctrl.resolve(w, http.StatusConflict, map[string]any{"admitted": false})
		return
	}
	ctrl.resolve(w, http.StatusAccepted, map[string]any{"admitted": true})
}

func (ctrl *controller) listSessions(w http.ResponseWriter, r *http.Request) {
	targetID := parseInt(chi.URLParam(r, "target_id"))

	sessions, err := ctrl.svc.RecentSessions(r.Context(), targetID, 20)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, FromMany[*models.CrawlSession, SessionView](sessions))
}

func (ctrl *controller) listAnalyses(w http.ResponseWriter, r *http.Request) {
	targetID := parseInt(chi.URLParam(r, "target_id"))

	analyses, err := ctrl.svc.RecentAnalyses(r.Context(), targetID, 20)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, 200, FromMany[*models.ChangeAnalysis, AnalysisView](analyses))
}

func (ctrl *controller) viewSnapshot(w http.ResponseWriter, r *http.Request) {
	targetID := parseInt(chi.URLParam(r, "target_id"))

	snap, err := ctrl.svc.LatestSnapshot(r.Context(), targetID)
	if err != nil {
		ctrl.rejectForError(w, err)
		return
	}
	ctrl.resolve(w, 200, SnapshotView{}.From(snap))
}

func (ctrl *controller) rejectForError(w http.ResponseWriter, err error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ctrl.reject(w, 404, errors.New("not found"))
		return
	}
	ctrl.reject(w, 500, err)
}

func parseInt(s string) uint {
	u, _ := strconv.ParseUint(s, 10, 64)
	return uint(u)
}
