package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/PortNumber53/fashion-shoot/backend/internal/config"
	"github.com/PortNumber53/fashion-shoot/backend/internal/proxy"
)

func main() {
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg := config.LoadGateway()
	gw, err := proxy.New(cfg.BackendURL, nil)
	if err != nil {
		log.Fatalf("failed to configure gateway: %v", err)
	}

	srv := &http.Server{
		Addr:        cfg.ListenAddress,
		Handler:     gw.Routes(cfg),
		ReadTimeout: 30 * time.Second,
		// Leave room for the slowest upstream route.
		WriteTimeout: cfg.ImageEditTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
	}()

	log.Printf("gateway starting on %s, forwarding to %s", cfg.ListenAddress, cfg.BackendURL)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("gateway exited with error: %v", err)
		os.Exit(1)
	}
}
