package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recordiary/backend/internal/middleware"
)

// RouterConfig collects the handlers the router mounts. Enrich may be
// nil when enrichment is disabled; its route then answers 503.
type RouterConfig struct {
	Diary    *DiaryHandlers
	Deco     *DecoHandlers
	Room     *RoomHandlers
	Enrich   *EnrichHandlers
	Health   *HealthHandlers
	Registry *prometheus.Registry
	Version  string
}

// NewRouter assembles the service mux. Method dispatch happens inside
// the handlers; every dynamic parameter travels in the query string, so
// the paths stay plain.
func NewRouter(cfg RouterConfig) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/diary", cfg.Diary.Diary)
	mux.HandleFunc("/diary/month", cfg.Diary.DiaryMonth)
	mux.HandleFunc("/calendar", cfg.Diary.Calendar)

	mux.HandleFunc("/deco", cfg.Deco.Deco)
	mux.HandleFunc("/deco/available", cfg.Deco.Available)

	mux.HandleFunc("/room", cfg.Room.Room)

	if cfg.Enrich != nil {
		mux.HandleFunc("/internal/enrich/retry", cfg.Enrich.Retry)
	} else {
		mux.HandleFunc("/internal/enrich/retry", func(w http.ResponseWriter, r *http.Request) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
			WriteError(w, ctx, http.StatusServiceUnavailable, ErrCodeInternal, "Enrichment is not configured")
		})
	}

	mux.HandleFunc("/health", cfg.Health.Health)
	mux.HandleFunc("/ready", cfg.Health.Ready)

	if cfg.Registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	version := cfg.Version
	if version == "" {
		version = "0.0.1"
	}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Only handle exact root path, everything else returns 404
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeNotFound)
			WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"recordiary-api","version":"` + version + `"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	return mux
}
