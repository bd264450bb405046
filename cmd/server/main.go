package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p-n-ai/pai-courses/internal/content"
	"github.com/p-n-ai/pai-courses/internal/course"
	"github.com/p-n-ai/pai-courses/internal/notify"
	"github.com/p-n-ai/pai-courses/internal/platform/cache"
	"github.com/p-n-ai/pai-courses/internal/platform/config"
	"github.com/p-n-ai/pai-courses/internal/platform/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		slog.Info("database schema applied")
	}

	kv, err := cache.New(ctx, cfg.Cache.URL)
	if err != nil {
		return err
	}
	defer kv.Close()

	src, err := newSource(cfg.Content, db)
	if err != nil {
		return err
	}

	contentCache, err := content.NewCache(content.Config{
		Store:  kv,
		Graphs: src.graphs,
		TTL:    cfg.Cache.TTLDuration(),
	})
	if err != nil {
		return err
	}
	router, err := content.NewRouter(content.RouterConfig{
		Cache:   contentCache,
		Parents: src.parents,
		Events:  content.NewPostgresEventLogger(db.Pool),
	})
	if err != nil {
		return err
	}
	hub := notify.NewHub()
	router.Subscribe(hub.Publish)

	go src.watch(ctx, func(ctx context.Context, ref course.Ref) {
		if err := router.OnEntityChanged(ctx, ref); err != nil {
			slog.Error("course change not applied", "entity", ref.String(), "error", err)
		}
	})

	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: newMux(handlers{
			checks: []readinessCheck{
				{name: "database", check: db.HealthCheck},
				{name: "cache", check: kv.HealthCheck},
			},
			content: contentCache,
			hub:     hub,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "content_source", cfg.Content.Source)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// source is where course graphs come from and how their changes are observed.
type source struct {
	graphs  course.GraphProvider
	parents course.ParentResolver
	watch   func(ctx context.Context, hook course.CommitHook)
}

func newSource(cfg config.ContentConfig, db *database.DB) (*source, error) {
	switch cfg.Source {
	case config.SourceFiles:
		loader, err := course.NewLoader(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &source{
			graphs:  loader,
			parents: loader,
			watch: func(ctx context.Context, hook course.CommitHook) {
				watchReload(ctx, loader, hook)
			},
		}, nil
	default:
		store, err := course.NewPostgresStore(db.Pool)
		if err != nil {
			return nil, err
		}
		return &source{
			graphs:  store,
			parents: store,
			watch: func(ctx context.Context, hook course.CommitHook) {
				for ctx.Err() == nil {
					if err := store.Listen(ctx, hook); err != nil {
						slog.Error("course change listener stopped, retrying", "error", err)
						select {
						case <-ctx.Done():
						case <-time.After(5 * time.Second):
						}
					}
				}
			},
		}, nil
	}
}

// watchReload re-reads course documents on SIGHUP and reports every added,
// changed or removed course.
func watchReload(ctx context.Context, loader *course.Loader, hook course.CommitHook) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			changed, err := loader.Reload()
			if err != nil {
				slog.Error("course reload failed", "error", err)
				continue
			}
			slog.Info("courses reloaded", "changed", len(changed))
			for _, id := range changed {
				hook(ctx, course.InstanceRef(id))
			}
		}
	}
}

// newLogger builds the process logger from the log settings. An unknown
// level falls back to info.
func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

type readinessCheck struct {
	name  string
	check func(context.Context) error
}

type handlers struct {
	checks  []readinessCheck
	content *content.Cache
	hub     http.Handler
}

// newMux creates the HTTP router with health, metrics, hierarchy and
// invalidation feed endpoints.
func newMux(h handlers) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", h.handleReadyz)
	mux.Handle("GET /metrics", promhttp.Handler())
	if h.content != nil {
		mux.HandleFunc("GET /courses/{id}/hierarchy", h.handleHierarchy)
	}
	if h.hub != nil {
		mux.Handle("GET /ws/invalidations", h.hub)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h handlers) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, c := range h.checks {
		if err := c.check(ctx); err != nil {
			slog.Warn("readiness check failed", "check", c.name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "failed": c.name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type hierarchyResponse struct {
	InstanceID int64          `json:"instance_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Nodes      []content.Node `json:"nodes"`
}

func (h handlers) handleHierarchy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid course id"})
		return
	}

	view, err := h.content.Content(r.Context(), id)
	switch {
	case errors.Is(err, content.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "course not found"})
		return
	case err != nil:
		slog.Error("hierarchy unavailable", "instance_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "hierarchy unavailable"})
		return
	}

	writeJSON(w, http.StatusOK, hierarchyResponse{
		InstanceID: id,
		CreatedAt:  view.Created(),
		Nodes:      view.FullHierarchy(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", "error", err)
	}
}
