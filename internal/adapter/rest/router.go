package rest

import (
	"net/http"

	"github.com/Abdurahmanit/GroupProject/flashlist-service/internal/platform/logger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type RouterConfig struct {
	JWTSecret string
	Metrics   HTTPMetrics
}

// NewRouter mounts every route. Photo downloads stay public so marketplaces
// can fetch the URLs handed to them.
func NewRouter(h *Handler, cfg RouterConfig, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(chimw.RealIP)
	r.Use(AccessLog(log.Named("HTTP"), cfg.Metrics))
	r.Use(chimw.Recoverer)

	r.Get("/healthz", h.Health)
	r.Get("/api/photos/*", h.GetPhoto)

	r.Group(func(r chi.Router) {
		r.Use(JWTAuth(cfg.JWTSecret, log))

		r.Post("/api/photos", h.UploadPhoto)
		r.Post("/api/generate", h.Generate)
		r.Post("/api/price", h.SuggestPrice)
		r.Get("/api/marketplaces", h.ListMarketplaces)

		r.Route("/api/listings", func(r chi.Router) {
			r.Post("/", h.CreateListing)
			r.Get("/", h.ListMine)
			r.Get("/{id}", h.GetListing)
			r.Put("/{id}", h.UpdateListing)
			r.Delete("/{id}", h.DeleteListing)
			r.Post("/{id}/marketplaces/{marketplace}/retry", h.RetryMarketplace)
		})

		r.With(RequireRole(RoleAdmin)).Get("/api/admin/stats", h.Stats)
	})

	return otelhttp.NewHandler(r, "flashlist-http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}
