package proxy

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/PortNumber53/fashion-shoot/backend/internal/config"
	"github.com/PortNumber53/fashion-shoot/backend/internal/middleware"
)

// Routes mounts the gateway's routes. Anything else is 404.
func (g *Gateway) Routes(cfg config.GatewayConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	r.Post("/api/image-edit", g.ImageEdit(cfg.ImageEditTimeout))
	r.Post("/api/upload/image", g.Forward(cfg.DefaultTimeout))
	r.Post("/api/upload/audio", g.Forward(cfg.DefaultTimeout))
	r.Get("/api/user/profile", g.Forward(cfg.DefaultTimeout))
	r.Put("/api/user/profile", g.Forward(cfg.DefaultTimeout))
	r.Get("/api/user/credits", g.Forward(cfg.DefaultTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}
