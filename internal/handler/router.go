package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/aura/backend/internal/handler/prompts"
	"github.com/zhouzirui/aura/backend/internal/handler/sessions"
	"github.com/zhouzirui/aura/backend/internal/handler/voice"
	middlewarePkg "github.com/zhouzirui/aura/backend/internal/middleware"
	"github.com/zhouzirui/aura/backend/internal/model/prompt"
	"github.com/zhouzirui/aura/backend/internal/service/conversation"
	"github.com/zhouzirui/aura/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(ctl *conversation.Controller, library prompt.Store, hub *voice.Hub, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "ok",
			"sessions": ctl.Store().Len(),
		})
	})

	r.Route("/api", func(api chi.Router) {
		sessions.New(ctl, logger).RegisterRoutes(api)
		prompts.New(library).RegisterRoutes(api)
		voice.New(ctl, hub, logger).RegisterRoutes(api)
	})

	return r
}
