package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/PortNumber53/fashion-shoot/backend/internal/auth"
	"github.com/PortNumber53/fashion-shoot/backend/internal/config"
	"github.com/PortNumber53/fashion-shoot/backend/internal/envvars"
	"github.com/PortNumber53/fashion-shoot/backend/internal/httpserver"
	"github.com/PortNumber53/fashion-shoot/backend/internal/mailer"
	"github.com/PortNumber53/fashion-shoot/backend/internal/migrations"
	"github.com/PortNumber53/fashion-shoot/backend/internal/ratelimit"
	"github.com/PortNumber53/fashion-shoot/backend/internal/scheduler"
	"github.com/PortNumber53/fashion-shoot/backend/internal/store"
	"github.com/PortNumber53/fashion-shoot/backend/internal/webhook"
	"github.com/PortNumber53/fashion-shoot/backend/internal/worker"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logDBTarget("primary", cfg.DatabaseURL)
	configureDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if err := runMigrationsWithDirtyFix(db, "primary"); err != nil {
		log.Fatalf("failed to apply database migrations: %v", err)
	}

	users, err := store.New(db)
	if err != nil {
		log.Fatalf("failed to create store: %v", err)
	}
	plans, err := store.NewPlanStore(db)
	if err != nil {
		log.Fatalf("failed to create plan store: %v", err)
	}
	jobs, err := store.NewJobStore(db)
	if err != nil {
		log.Fatalf("failed to create job store: %v", err)
	}

	var (
		limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
		locker  scheduler.Locker
	)
	if rdb := connectRedis(cfg.RedisURL); rdb != nil {
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb)
		locker = scheduler.NewRedisLocker(rdb)
	}

	resolver := webhook.NewResolver()
	hooks := webhook.NewClient(nil)

	workerCfg := worker.DefaultConfig()
	workerCfg.MaxConcurrent = cfg.WorkerConcurrency
	jobWorker := worker.New(workerCfg, jobs, nil)
	worker.RegisterPhotoshootJobs(jobWorker, resolver, hooks)
	jobWorker.SetInstrumentation(&worker.Instrumentation{
		OnHeartbeat: func(id string, st worker.Stats) {
			log.Printf("[worker] %s heartbeat: processed=%d succeeded=%d failed=%d active=%d",
				id, st.JobsProcessed, st.JobsSucceeded, st.JobsFailed, st.ActiveWorkers)
		},
	})

	cron := scheduler.New(locker)
	for _, task := range scheduler.MaintenanceTasks(jobs, users, users) {
		if err := cron.Add(task); err != nil {
			log.Fatalf("failed to schedule %s: %v", task.Name, err)
		}
	}

	srv := httpserver.New(cfg, httpserver.Deps{
		Users:     users,
		Plans:     plans,
		Jobs:      jobs,
		Env:       envvars.NewFileStore(cfg.EnvFilePath, true),
		Tokens:    auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiry),
		Mail:      newMailer(cfg),
		Limiter:   limiter,
		Resolver:  resolver,
		Editor:    hooks,
		Worker:    jobWorker,
		Scheduler: cron,
	})

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
	}()

	log.Printf("backend starting on %s", cfg.ServerAddress)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server exited with error: %v", err)
		os.Exit(1)
	}
}

func newMailer(cfg config.Config) *mailer.Mailer {
	mc := mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.EmailFrom,
	}
	if !mc.Configured() {
		log.Printf("mailer: SMTP not configured, verification codes will be logged")
	}
	return mailer.New(mc)
}

// connectRedis returns nil when Redis is not configured or unreachable; the
// server then falls back to in-process rate limiting and unlocked cron runs.
func connectRedis(rawURL string) *redis.Client {
	if rawURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		log.Printf("redis: invalid REDIS_URL: %v", err)
		return nil
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("redis: ping failed, continuing without redis: %v", err)
		_ = client.Close()
		return nil
	}
	log.Printf("redis: connected to %s", opts.Addr)
	return client
}

func configureDB(db *sql.DB) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

func runMigrationsWithDirtyFix(db *sql.DB, name string) error {
	if err := migrations.Up(db); err != nil {
		log.Printf("migrations(%s): error detected: %v (type: %T)", name, err, err)
		if strings.Contains(err.Error(), "Dirty database version") {
			log.Printf("migrations(%s): dirty database detected, attempting to fix...", name)
			if fixErr := migrations.FixDirtyDatabase(db); fixErr != nil {
				log.Printf("migrations(%s): failed to fix dirty database: %v", name, fixErr)
				return err
			}
			return migrations.Up(db)
		}
		return err
	}
	return nil
}

func logDBTarget(name, dsn string) {
	// Avoid logging secrets: only log hostname + database path.
	u, err := url.Parse(dsn)
	if err != nil {
		log.Printf("db(%s): configured (dsn parse error: %v)", name, err)
		return
	}
	log.Printf("db(%s): host=%s db=%s", name, u.Hostname(), strings.TrimPrefix(u.Path, "/"))
}
