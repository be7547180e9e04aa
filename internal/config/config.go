package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":5000".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string

	// JWTSecret signs session tokens.
	JWTSecret string

	// JWTExpiry is the lifetime of issued tokens. Defaults to 7 days.
	JWTExpiry time.Duration

	// RedisURL enables the shared rate limiter and scheduler locks when set.
	RedisURL string

	// CORSOrigins lists the browser origins allowed to call the API.
	CORSOrigins []string

	// UploadDir is where uploaded media is written; UploadBaseURL is the public
	// prefix it is served under.
	UploadDir      string
	UploadBaseURL  string
	MaxUploadBytes int64

	// EnvFilePath is the dotenv file edited through the admin environment page.
	EnvFilePath string

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string
	EmailFrom    string

	// WorkerConcurrency is the number of generation jobs processed in parallel.
	WorkerConcurrency int

	// AuthRateLimit requests per AuthRateWindow are allowed per client on auth routes.
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

const (
	defaultServerAddress  = ":5000"
	defaultJWTExpiry      = 7 * 24 * time.Hour
	defaultUploadDir      = "uploads"
	defaultUploadBaseURL  = "/uploads"
	defaultMaxUploadBytes = 10 << 20
	defaultEnvFilePath    = ".env"
	defaultWorkerCount    = 5
	defaultAuthRateLimit  = 10
	defaultAuthRateWindow = time.Minute

	envServerAddress  = "BACKEND_ADDR"
	envPort           = "PORT"
	envDatabaseURL    = "DATABASE_URL"
	envJWTSecret      = "JWT_SECRET"
	envJWTExpiresIn   = "JWT_EXPIRES_IN"
	envRedisURL       = "REDIS_URL"
	envCORSOrigins    = "CORS_ORIGINS"
	envFrontendURL    = "FRONTEND_URL"
	envUploadDir      = "UPLOAD_DIR"
	envUploadBaseURL  = "UPLOAD_BASE_URL"
	envMaxUploadBytes = "MAX_UPLOAD_BYTES"
	envEnvFilePath    = "ENV_FILE_PATH"
	envSMTPHost       = "SMTP_HOST"
	envSMTPPort       = "SMTP_PORT"
	envSMTPUser       = "SMTP_USER"
	envSMTPPass       = "SMTP_PASS"
	envEmailFrom      = "EMAIL_FROM"
	envWorkerCount    = "WORKER_CONCURRENCY"
	envAuthRateLimit  = "AUTH_RATE_LIMIT"
	envAuthRateWindow = "AUTH_RATE_WINDOW"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress: firstNonEmpty(os.Getenv(envServerAddress), portAddress(os.Getenv(envPort)), defaultServerAddress),
		DatabaseURL:   os.Getenv(envDatabaseURL),
		JWTSecret:     os.Getenv(envJWTSecret),
		RedisURL:      os.Getenv(envRedisURL),
		UploadDir:     firstNonEmpty(os.Getenv(envUploadDir), defaultUploadDir),
		UploadBaseURL: strings.TrimRight(firstNonEmpty(os.Getenv(envUploadBaseURL), defaultUploadBaseURL), "/"),
		EnvFilePath:   firstNonEmpty(os.Getenv(envEnvFilePath), defaultEnvFilePath),
		SMTPHost:      os.Getenv(envSMTPHost),
		SMTPPort:      firstNonEmpty(os.Getenv(envSMTPPort), "587"),
		SMTPUser:      os.Getenv(envSMTPUser),
		SMTPPassword:  os.Getenv(envSMTPPass),
		EmailFrom:     os.Getenv(envEmailFrom),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%s is required", envDatabaseURL)
	}
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("%s is required", envJWTSecret)
	}

	expiry, err := ParseExpiry(os.Getenv(envJWTExpiresIn), defaultJWTExpiry)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", envJWTExpiresIn, err)
	}
	cfg.JWTExpiry = expiry

	if cfg.MaxUploadBytes, err = intEnv(envMaxUploadBytes, defaultMaxUploadBytes); err != nil {
		return Config{}, err
	}
	workers, err := intEnv(envWorkerCount, defaultWorkerCount)
	if err != nil {
		return Config{}, err
	}
	cfg.WorkerConcurrency = int(workers)

	limit, err := intEnv(envAuthRateLimit, defaultAuthRateLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.AuthRateLimit = int(limit)

	cfg.AuthRateWindow = defaultAuthRateWindow
	if raw := os.Getenv(envAuthRateWindow); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", envAuthRateWindow, raw)
		}
		cfg.AuthRateWindow = window
	}

	cfg.CORSOrigins = splitList(os.Getenv(envCORSOrigins))
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{firstNonEmpty(os.Getenv(envFrontendURL), "http://localhost:3000")}
	}

	return cfg, nil
}

// ParseExpiry accepts Go durations ("72h") and whole days ("7d"). An empty
// value yields fallback.
func ParseExpiry(raw string, fallback time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	if strings.HasSuffix(raw, "d") {
		days, err := strconv.Atoi(strings.TrimSuffix(raw, "d"))
		if err != nil || days <= 0 {
			return 0, fmt.Errorf("bad day count %q", raw)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func portAddress(port string) string {
	if port == "" {
		return ""
	}
	return ":" + port
}

func intEnv(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
