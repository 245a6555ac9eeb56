package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopmind-ai/shopmind/internal/api"
	"github.com/shopmind-ai/shopmind/internal/api/handlers"
	"github.com/shopmind-ai/shopmind/internal/api/middleware"
)

type RouterConfig struct {
	OwnerValidator  middleware.OwnerValidator
	ChatHandler     *handlers.ChatHandler
	DocumentHandler *handlers.DocumentHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.OwnerAuth(cfg.OwnerValidator))

		r.Post("/chat", cfg.ChatHandler.Ask)
		r.Post("/chat/stream", cfg.ChatHandler.Stream)

		r.Route("/documents", func(r chi.Router) {
			r.Post("/upload", cfg.DocumentHandler.InitUpload)
			r.Post("/ingest", cfg.DocumentHandler.Ingest)
		})
	})

	return r
}
