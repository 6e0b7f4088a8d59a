package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Route("/batches", func(r chi.Router) {
			r.Post("/upload", h.UploadBatch)
			r.Get("/", h.ListBatches)
			r.Get("/{id}", h.GetBatch)
			r.Get("/{id}/stats", h.GetBatchStats)
			r.Get("/{id}/rejected", h.DownloadRejected)
			r.Post("/{id}/validate", h.StartValidation)
			r.Post("/{id}/guest-export", h.GuestExport)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/", h.ListJobs)
			r.Get("/{id}", h.GetJob)
			r.Get("/{id}/progress", h.GetJobProgress)
			r.Post("/{id}/cancel", h.CancelJob)
		})

		r.Route("/exports", func(r chi.Router) {
			r.Post("/", h.StartExport)
			r.Route("/templates", func(r chi.Router) {
				r.Get("/", h.ListTemplates)
				r.Post("/", h.SaveTemplate)
				r.Delete("/{name}", h.DeleteTemplate)
			})
		})

		r.Route("/downloads", func(r chi.Router) {
			r.Get("/", h.ListDownloads)
			r.Get("/{id}/file", h.Redownload)
		})
		r.Get("/guest-downloads/{id}/file", h.GuestRedownload)

		r.Get("/domains/{domain}/reputation", h.GetDomainReputation)

		r.Route("/ignore-domains", func(r chi.Router) {
			r.Get("/", h.ListIgnoreDomains)
			r.Post("/", h.AddIgnoreDomain)
			r.Delete("/{domain}", h.RemoveIgnoreDomain)
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Get("/", h.ListSuppressions)
			r.Post("/", h.AddSuppression)
			r.Post("/import", h.ImportSuppressions)
			r.Delete("/{address}", h.RemoveSuppression)
		})
	})

	return r
}
