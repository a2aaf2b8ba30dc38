package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"datavant-style-exchange/datalake/internal/metrics"
)

// Routes mounts the API. metricsHandler is served unauthenticated at /metrics.
func (h *Handler) Routes(metricsHandler http.Handler) http.Handler {
	router := chi.NewRouter()
	router.Use(countRequests)

	router.Get("/healthz", h.Healthz)
	router.Method(http.MethodGet, "/metrics", metricsHandler)
	router.Route("/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(h.cfg))
		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.Use(TenantScope)
			r.Post("/resources", h.PublishResources)
			r.Post("/binaries", h.PublishBinaries)
			r.Post("/raw", h.PublishRaw)
			r.Get("/binaries/{id}", h.GetBinary)
			r.Head("/binaries/{id}", h.HeadBinary)
		})
		r.Post("/binaries/lookup", h.LookupBinaries)
		r.Get("/objects/exists", h.ObjectExists)
		r.Get("/reference/*", h.GetReference)
	})
	return router
}

func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}
