package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/solapur-gov/healthgrid/internal/adapters/his"
	"github.com/solapur-gov/healthgrid/internal/archive"
	"github.com/solapur-gov/healthgrid/internal/engine"
	"github.com/solapur-gov/healthgrid/internal/ingest"
	"github.com/solapur-gov/healthgrid/internal/shared/auth"
	"github.com/solapur-gov/healthgrid/internal/shared/config"
	"github.com/solapur-gov/healthgrid/internal/shared/database"
	"github.com/solapur-gov/healthgrid/internal/shared/events"
	"github.com/solapur-gov/healthgrid/internal/shared/metrics"
	secmiddleware "github.com/solapur-gov/healthgrid/internal/shared/middleware"
)

// App holds all application dependencies
type App struct {
	Config   *config.Config
	DB       *database.DB
	Store    *events.StorePublisher
	Bus      *events.Bus
	Engine   *engine.Engine
	Archiver *archive.PostgresArchiver
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	app := &App{Config: cfg}

	// Database is optional: without it the engine runs in-memory only
	// and nothing is archived.
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		log.Printf("warning: database not available: %v", err)
		log.Println("running without archive...")
	} else {
		app.DB = db
		defer db.Close()

		if err := database.Migrate(ctx, db.Pool); err != nil {
			log.Printf("warning: migration failed: %v", err)
		}

		app.Archiver = archive.NewPostgresArchiver(db.Pool)
		defer app.Archiver.Close()
	}

	// Broadcast: always an in-process bus for WebSocket-style
	// consumers, plus EventStoreDB when reachable.
	app.Bus = events.NewBus(64)
	defer app.Bus.Close()

	publishers := events.Fanout{app.Bus}
	store, err := events.NewStorePublisher(ctx, cfg.EventStore)
	if err != nil {
		log.Printf("warning: EventStoreDB not available: %v", err)
		log.Println("running with in-process broadcast only...")
	} else {
		app.Store = store
		defer store.Close()
		publishers = append(publishers, store)
		log.Println("EventStoreDB broadcast sink initialized")
	}

	var archiver engine.Archiver
	if app.Archiver != nil {
		archiver = app.Archiver
	}
	app.Engine = engine.New(cfg.Engine, publishers, archiver)

	// HIS backfill warms detector baselines from the legacy system.
	if cfg.HIS.Enabled {
		adapter := his.New(cfg.HIS, app.Engine)
		if err := adapter.Start(ctx); err != nil {
			log.Printf("warning: HIS adapter failed to start: %v", err)
		} else {
			defer adapter.Stop()
			log.Println("HIS backfill adapter started")
		}
	}

	rateLimiter := secmiddleware.NewIPRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(secmiddleware.SecurityHeaders)
	r.Use(metrics.Middleware)
	r.Use(corsMiddleware)

	// Health checks (unauthenticated)
	r.Get("/health", healthHandler(app))
	r.Get("/ready", readyHandler(app))
	r.Handle("/metrics", metrics.Handler())

	r.Get("/", infoHandler)

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.Server.Env == "production" {
			r.Use(auth.Middleware(cfg.Auth))
		}

		ingestHandler := ingest.NewHandler(app.Engine, ingest.NewRing(256))
		r.Route("/ingest", func(r chi.Router) {
			r.Use(rateLimiter.Middleware)
			r.Mount("/", ingestHandler.Routes())
		})

		dashboardHandler := engine.NewHandler(app.Engine)
		r.Mount("/dashboard", dashboardHandler.Routes())
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("shutting down server...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
		close(done)
	}()

	log.Println("============================================")
	log.Println("Solapur Municipal Health Intelligence Grid")
	log.Println("============================================")
	log.Printf("Environment:  %s", cfg.Server.Env)
	log.Printf("Server:       http://localhost:%d", cfg.Server.Port)
	log.Printf("Ingest:       http://localhost:%d/api/v1/ingest", cfg.Server.Port)
	log.Printf("Dashboard:    http://localhost:%d/api/v1/dashboard", cfg.Server.Port)
	log.Printf("Metrics:      http://localhost:%d/metrics", cfg.Server.Port)
	log.Println("============================================")

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}

	<-done
	log.Println("server stopped")
}

func infoHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":    "Solapur Municipal Health Intelligence Grid",
		"version": "0.1.0",
		"docs":    "/api/v1",
	})
}

func healthHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "healthy",
		})
	}
}

func readyHandler(app *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"server": "ready",
		}

		if app.DB != nil {
			if err := app.DB.Health(r.Context()); err != nil {
				checks["database"] = "not ready: " + err.Error()
			} else {
				checks["database"] = "ready"
			}
		} else {
			checks["database"] = "not configured"
		}

		if app.Store != nil {
			if err := app.Store.Health(); err != nil {
				checks["eventstore"] = "not ready: " + err.Error()
			} else {
				checks["eventstore"] = "ready"
			}
		} else {
			checks["eventstore"] = "not configured"
		}

		allReady := true
		for _, status := range checks {
			if status != "ready" && status != "not configured" {
				allReady = false
				break
			}
		}

		status := http.StatusOK
		if !allReady {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]any{
			"status": map[bool]string{true: "ready", false: "not ready"}[allReady],
			"checks": checks,
		})
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
