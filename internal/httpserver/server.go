package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/PortNumber53/fashion-shoot/backend/internal/config"
	"github.com/PortNumber53/fashion-shoot/backend/internal/envvars"
	"github.com/PortNumber53/fashion-shoot/backend/internal/handlers"
	"github.com/PortNumber53/fashion-shoot/backend/internal/middleware"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/ratelimit"
	"github.com/PortNumber53/fashion-shoot/backend/internal/scheduler"
	"github.com/PortNumber53/fashion-shoot/backend/internal/webhook"
	"github.com/PortNumber53/fashion-shoot/backend/internal/worker"
)

// UserStore is everything the user-facing routes need from the primary store.
// *store.Store satisfies it.
type UserStore interface {
	handlers.Pinger
	handlers.AuthStore
	handlers.AccountStore
	handlers.ProfileStore
	handlers.CreditStore
	handlers.UploadStore
	handlers.AnalyticsStore
	middleware.RequestRecorder
}

// JobStore is the queue as seen by the HTTP layer. *store.JobStore satisfies it.
type JobStore interface {
	handlers.JobStore
	handlers.JobCanceller
	handlers.PhotoshootQueue
}

// Tokens issues and parses session tokens. *auth.Issuer satisfies it.
type Tokens interface {
	handlers.TokenIssuer
	middleware.TokenParser
}

// Deps bundles what New wires into the router.
type Deps struct {
	Users    UserStore
	Plans    handlers.PlanStore
	Jobs     JobStore
	Env      handlers.EnvStore
	Tokens   Tokens
	Mail     handlers.VerificationSender
	Limiter  ratelimit.Limiter
	Resolver *webhook.Resolver
	Editor   handlers.ImageEditor

	// Worker and Scheduler are optional; when set they start and stop with
	// the server.
	Worker    *worker.Worker
	Scheduler *scheduler.Scheduler
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	worker     *worker.Worker
	scheduler  *scheduler.Scheduler
}

// New constructs an HTTP server using the provided configuration and dependencies.
func New(cfg config.Config, deps Deps) *Server {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.NewRequestTracker(deps.Users).Middleware())

	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewMemoryLimiter()
	}
	if deps.Resolver == nil {
		deps.Resolver = webhook.NewResolver()
	}
	if deps.Editor == nil {
		deps.Editor = webhook.NewClient(nil)
	}

	health := handlers.Health(deps.Users)
	router.Get("/health", health)
	router.Get("/healthz", health)

	router.Handle("/uploads/*", uploadFiles(cfg.UploadDir))

	authHandler := &handlers.AuthHandler{Store: deps.Users, Tokens: deps.Tokens, Mail: deps.Mail}
	router.Route("/api/auth", func(r chi.Router) {
		r.Use(middleware.RateLimit(deps.Limiter, cfg.AuthRateLimit, cfg.AuthRateWindow))
		r.Post("/signup", authHandler.Signup())
		r.Post("/verify-email", authHandler.VerifyEmail())
		r.Post("/resend-otp", authHandler.ResendOTP())
		r.Post("/login", authHandler.Login())
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.OptionalAuthenticate(deps.Tokens, deps.Users))
		r.Get("/api/plans", handlers.ListPlans(deps.Plans))
		r.Get("/api/plans/{id}", handlers.GetPlan(deps.Plans))
	})

	imageEdit := &handlers.ImageEditHandler{Credits: deps.Users, Resolver: deps.Resolver, Editor: deps.Editor}
	uploads := &handlers.UploadHandler{
		Store:    deps.Users,
		Dir:      cfg.UploadDir,
		BaseURL:  cfg.UploadBaseURL,
		MaxBytes: cfg.MaxUploadBytes,
	}
	photoshoots := &handlers.PhotoshootHandler{Jobs: deps.Jobs, Users: deps.Users}

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(deps.Tokens, deps.Users))

		r.Post("/api/image-edit", imageEdit.ServeHTTP)
		r.Post("/api/upload/image", uploads.Upload(models.UploadImage))
		r.Post("/api/upload/audio", uploads.Upload(models.UploadAudio))

		r.Get("/api/user/profile", handlers.GetProfile(deps.Users))
		r.Put("/api/user/profile", handlers.UpdateProfile(deps.Users))
		r.Get("/api/user/credits", handlers.GetCredits(deps.Users))

		r.Post("/api/photoshoots", photoshoots.Create())
		r.Get("/api/photoshoots/{id}", photoshoots.Get())

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdmin)
			mountAdmin(r, deps)
		})
	})

	srv := &http.Server{
		Addr:        cfg.ServerAddress,
		Handler:     router,
		ReadTimeout: 30 * time.Second,
		// Image edits may take the full webhook timeout.
		WriteTimeout: webhook.ImageEditTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, worker: deps.Worker, scheduler: deps.Scheduler}
}

func mountAdmin(r chi.Router, deps Deps) {
	r.Post("/api/plans", handlers.CreatePlan(deps.Plans))
	r.Put("/api/plans/{id}", handlers.UpdatePlan(deps.Plans))
	r.Delete("/api/plans/{id}", handlers.DeletePlan(deps.Plans))

	r.Route("/api/admin/users", func(r chi.Router) {
		r.Get("/", handlers.ListUsers(deps.Users))
		r.Get("/{id}", handlers.GetUser(deps.Users))
		r.Patch("/{id}", handlers.UpdateUserInfo(deps.Users))
		r.Put("/{id}/account", handlers.SaveAccount(deps.Users))
		r.Patch("/{id}/status", handlers.UpdateUserStatus(deps.Users))
		r.Patch("/{id}/role", handlers.UpdateUserRole(deps.Users))
		r.Patch("/{id}/plan", handlers.UpdateUserPlan(deps.Users))
		r.Patch("/{id}/credits", handlers.UpdateUserCredits(deps.Users))
		r.Post("/{id}/credits/reset", handlers.ResetUserCredits(deps.Users))
		r.Delete("/{id}", handlers.DeleteUser(deps.Users))
	})

	if deps.Env != nil {
		env := &handlers.EnvironmentHandler{Store: deps.Env, Categorizer: envvars.DefaultCategorizer()}
		r.Get("/api/admin/environment", env.List())
		r.Post("/api/admin/environment", env.Save())
		r.Post("/api/admin/environment/variables", env.Set())
		r.Delete("/api/admin/environment/variables/{key}", env.Delete())
	}

	r.Get("/api/admin/analytics", handlers.Analytics(deps.Users, deps.Jobs))

	// Without a local worker, cancellation goes straight to the queue.
	jobs := &handlers.JobHandler{Store: deps.Jobs, Worker: deps.Jobs}
	if deps.Worker != nil {
		jobs.Worker = deps.Worker
		jobs.Pool = deps.Worker.GetStats
	}
	r.Get("/api/admin/jobs/stats", jobs.Stats())
	r.Get("/api/admin/jobs/pending", jobs.ListPending())
	r.Get("/api/admin/jobs/processing", jobs.ListProcessing())
	r.Get("/api/admin/jobs/{id}", jobs.GetJob())
	r.Post("/api/admin/jobs/{id}/cancel", jobs.CancelJob())
}

// uploadFiles serves stored uploads without letting browsers sniff or run
// them as active content.
func uploadFiles(dir string) http.Handler {
	files := http.StripPrefix("/uploads/", http.FileServer(http.Dir(dir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; sandbox")
		files.ServeHTTP(w, r)
	})
}

// Start begins serving HTTP traffic and starts the worker and scheduler.
func (s *Server) Start() error {
	if s.worker != nil {
		log.Println("[server] Starting job worker...")
		s.worker.Start(context.Background())
	}
	if s.scheduler != nil {
		log.Println("[server] Starting scheduler...")
		s.scheduler.Start()
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server, worker and scheduler.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.scheduler != nil {
		if err := s.scheduler.Stop(ctx); err != nil {
			log.Printf("[server] Scheduler shutdown error: %v", err)
		}
	}
	if s.worker != nil {
		log.Println("[server] Shutting down job worker...")
		if err := s.worker.Stop(ctx); err != nil {
			log.Printf("[server] Worker shutdown error: %v", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
