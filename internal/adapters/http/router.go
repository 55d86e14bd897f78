package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skillforge/marketplace/internal/application"
	"github.com/skillforge/marketplace/internal/ports"
)

type Handler struct {
	service *application.Service
}

func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

func contextWithClaims(ctx context.Context, claims ports.AuthClaims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, claims)
}

func NewRouter(handler *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(loggingMiddleware(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ok") })
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) { writeMessage(w, http.StatusOK, "ready") })

	r.Route("/v1", func(r chi.Router) {
		r.Route("/packages", func(r chi.Router) {
			r.Get("/", handler.searchPackages)
			r.Get("/{ref}", handler.getPackage)
			r.Get("/{ref}/mint", handler.getMint)

			r.Group(func(r chi.Router) {
				r.Use(handler.authMiddleware)
				r.Post("/", handler.createPackage)
				r.Patch("/{ref}", handler.updatePackage)
				r.Post("/{ref}/ratings", handler.ratePackage)
				r.Get("/{ref}/invocations", handler.listInvocations)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/mints", handler.createMint)
			r.Post("/installations", handler.install)
			r.Get("/installations", handler.listInstallations)
			r.Delete("/installations/{id}", handler.uninstall)
			r.Get("/usage", handler.listUsage)
			r.Get("/royalties", handler.listRoyalties)

			r.Route("/security", func(r chi.Router) {
				r.Post("/knowledge/{slug}", handler.upsertKnowledge)
				r.Get("/knowledge/{slug}", handler.readKnowledge)
				r.Post("/invoke/{slug}", handler.invoke)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(handler.authMiddleware)
			r.Post("/packages/{ref}/ban", handler.adminBanPackage)
			r.Post("/packages/{ref}/archive", handler.adminArchivePackage)
		})
	})
	return r
}
