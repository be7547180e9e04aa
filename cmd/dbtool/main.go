package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/PortNumber53/fashion-shoot/backend/internal/config"
	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
	"github.com/PortNumber53/fashion-shoot/backend/internal/migrations"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/store"
)

const usage = "Usage: %s [fix|force <version>|status|ping|seed-plans]"

func main() {
	// Load environment variables
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database %s: %v", target(cfg.DatabaseURL), err)
	}

	if len(os.Args) < 2 {
		log.Printf("Applying migrations...")
		if err := migrations.Up(db); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		log.Printf("Migrations applied successfully")
		return
	}

	switch os.Args[1] {
	case "fix":
		log.Printf("Attempting to fix dirty database...")
		if err := migrations.FixDirtyDatabase(db); err != nil {
			log.Fatalf("failed to fix dirty database: %v", err)
		}
		log.Printf("Database fixed successfully")

	case "force":
		if len(os.Args) < 3 {
			log.Fatalf("usage: %s force <version>", os.Args[0])
		}
		var v uint
		if _, err := fmt.Sscanf(os.Args[2], "%d", &v); err != nil {
			log.Fatalf("invalid version number: %s", os.Args[2])
		}
		log.Printf("Forcing database version to %d...", v)
		if err := migrations.ForceVersion(db, v); err != nil {
			log.Fatalf("failed to force version: %v", err)
		}
		log.Printf("Database version forced to %d", v)

	case "status":
		v, dirty, err := migrations.Version(db)
		if err != nil {
			log.Fatalf("failed to read schema version: %v", err)
		}
		fmt.Printf("schema version: %d dirty: %t\n", v, dirty)

	case "ping":
		var serverVersion string
		if err := db.QueryRowContext(ctx, "SHOW server_version").Scan(&serverVersion); err != nil {
			log.Fatalf("connected but query failed: %v", err)
		}
		fmt.Printf("ok: %s (postgres %s)\n", target(cfg.DatabaseURL), serverVersion)

	case "seed-plans":
		plans, err := store.NewPlanStore(db)
		if err != nil {
			log.Fatalf("failed to create plan store: %v", err)
		}
		for _, p := range defaultPlans() {
			if err := plans.UpsertPlan(ctx, &p); err != nil {
				log.Fatalf("failed to seed plan %s: %v", p.ID, err)
			}
			log.Printf("seeded plan %s (%d credits, $%.2f)", p.ID, p.Credits, p.Price)
		}

	default:
		log.Printf(usage, os.Args[0])
		os.Exit(1)
	}
}

// defaultPlans mirrors the entitlement table so the pricing page and the
// credit grants agree.
func defaultPlans() []models.Plan {
	out := make([]models.Plan, 0, 5)
	for _, e := range credits.Entitlements() {
		out = append(out, models.Plan{
			ID:          slug.Make(e.Plan),
			Name:        e.Plan,
			Price:       float64(e.Price) / 100,
			Credits:     e.Credits,
			Description: fmt.Sprintf("%d generation credits", e.Credits),
			Features: models.PlanFeatures{
				{Text: fmt.Sprintf("%d credits", e.Credits)},
				{Text: fmt.Sprintf("Images cost %d, scenes %d, videos %d credits",
					credits.CostOf(credits.UsageImages), credits.CostOf(credits.UsageScenes), credits.CostOf(credits.UsageVideos))},
			},
			IsActive: true,
		})
	}
	return out
}

// target names the database without credentials.
func target(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "(unparseable dsn)"
	}
	return u.Hostname() + "/" + strings.TrimPrefix(u.Path, "/")
}
