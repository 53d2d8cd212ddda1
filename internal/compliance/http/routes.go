package compliancehttp

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/regwatch/regwatch/internal/compliance"
	"github.com/regwatch/regwatch/internal/shared"
)

// MountRoutes registers every list kind, the facility detail page and the JSON API.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	interactive := httprate.Limit(240, time.Minute,
		httprate.WithKeyFuncs(shared.RateLimitKey),
		httprate.WithLimitHandler(shared.TooManyRequests),
	)
	exports := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(shared.RateLimitKey),
		httprate.WithLimitHandler(shared.TooManyRequests),
	)
	api := httprate.Limit(60, time.Minute,
		httprate.WithKeyFuncs(shared.RateLimitKey),
		httprate.WithLimitHandler(shared.TooManyRequests),
	)

	for _, kind := range compliance.Kinds() {
		resolve := kindRef(kind)
		r.Route("/"+kind.Slug, func(r chi.Router) {
			r.Get("/", h.list(resolve))
			r.Group(func(gr chi.Router) {
				gr.Use(interactive)
				gr.Get("/more", h.more(resolve))
				gr.Get("/search", h.search(resolve))
			})
			r.Post("/release", h.release(resolve))
			r.With(exports).Get("/export.csv", h.export(resolve))

			if kind.Slug == compliance.SlugFacilities {
				r.Get("/{fei}", h.handleFacility)
				r.Route("/{fei}/inspections", func(r chi.Router) {
					r.With(interactive).Get("/more", h.more(facilityInspectionsRef))
					r.Post("/release", h.release(facilityInspectionsRef))
					r.With(exports).Get("/export.csv", h.export(facilityInspectionsRef))
				})
			}
		})
	}
	r.With(api).Get("/api/{kind}", h.handleAPI)
}
