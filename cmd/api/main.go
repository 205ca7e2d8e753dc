package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"orgrisk-backend/cmd"
	"orgrisk-backend/internal/api"
	"orgrisk-backend/internal/config"
	"orgrisk-backend/internal/core"
	"orgrisk-backend/internal/database"
	"orgrisk-backend/internal/storage"
)

func main() {
	log.Println("Starting API Server...")

	cmd.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	db, err := database.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	if cfg.ArtifactBucket != "" {
		provider, err := cfg.NewStorageProvider()
		if err != nil {
			log.Fatalf("Failed to create storage provider: %v", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		prefix := path.Join(cfg.ArtifactPrefix, core.ModelsDirName)
		if err := storage.DownloadDir(ctx, provider, cfg.ArtifactBucket, prefix, cfg.ModelDir); err != nil {
			cancel()
			log.Fatalf("Failed to pull model artifacts from bucket %s: %v", cfg.ArtifactBucket, err)
		}
		cancel()
		log.Printf("Pulled model artifacts from bucket %s into %s", cfg.ArtifactBucket, cfg.ModelDir)
	}

	predictor, err := core.LoadPredictor(cfg.ModelDir, cfg.NarrativeServingThreshold)
	if err != nil {
		log.Fatalf("Failed to load models from %s (run the trainer first): %v", cfg.ModelDir, err)
	}

	// --- Chi Router Setup ---
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)                    // Log requests
	r.Use(middleware.Recoverer)                 // Recover from panics
	r.Use(middleware.Timeout(60 * time.Second)) // Set request timeout
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	api.NewService(db, predictor).AddRoutes(r)

	// --- Start HTTP Server ---
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: r,
	}

	// Goroutine for graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Fatalf("Server forced to shutdown: %v", err)
		}
	}()

	log.Printf("API server listening on port %s", cfg.APIPort)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Could not listen on %s: %v\n", cfg.APIPort, err)
	}

	log.Println("Server stopped.")
}
