package restapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lodthe/registry-gc/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	zlog "github.com/rs/zerolog/log"
)

const (
	ListenerTrigger = "trigger"
	ListenerAdmin   = "admin"
)

type RouterConfig struct {
	// AllowedOrigins of the trigger listener. Empty means any http(s) origin.
	AllowedOrigins []string
}

// NewRouter creates the trigger router: a GET on any path runs the gc sequence.
func NewRouter(cfg RouterConfig, gc GCTrigger) http.Handler {
	r := chi.NewRouter()

	r.Use(metricsMiddleware(ListenerTrigger))

	r.Use(middleware.RequestID)
	r.Use(loggerMiddleware(ListenerTrigger))
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization"},
		MaxAge:         300,
	}))

	newTriggerHandler(gc).handle(r)

	return r
}

// NewAdminRouter serves metrics, the health check and the history of gc runs.
func NewAdminRouter(runs RunStorage) http.Handler {
	r := chi.NewRouter()

	r.Use(metricsMiddleware(ListenerAdmin))

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeResult(w, "ok")
	})

	newRunsHandler(runs).handle(r)

	return r
}

func metricsMiddleware(listener string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			routePattern := ""
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				routePattern = strings.Join(rctx.RoutePatterns, "")
			}

			status := fmt.Sprintf("%d %s", ww.Status(), http.StatusText(ww.Status()))
			metrics.RestAPI.NewRequest(listener, r.Method, routePattern, status, time.Since(start))
		})
	}
}

func loggerMiddleware(listener string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			zlog.Info().
				Str("listener", listener).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("remote_addr", r.RemoteAddr).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("elapsed", time.Since(start)).
				Msg("request handled")
		})
	}
}
