// Package main is the entry point for the DNA FastTrack custody server.
// It provides a REST API for forensic case tracking: cases, evidence
// samples, partner-lab results, and a tamper-evident chain-of-custody
// ledger.
//
// Architecture:
//   - Every workflow action (create case, status change, lab receive,
//     lab complete) appends exactly one hash-linked custody event
//   - Events chain via SHA-256 over (prev_hash, canonical payload); any
//     alteration or reordering of past events is detectable
//   - Appends are serialized per case inside the record store, so
//     concurrent writers can never fork the chain
//   - A background auditor re-verifies every case's chain periodically
//
// The ledger is append-only evidence: nothing in the API mutates or
// deletes a custody event once written.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dnafasttrack/custody-server/internal/config"
	"github.com/dnafasttrack/custody-server/internal/database"
	"github.com/dnafasttrack/custody-server/internal/handlers"
	"github.com/dnafasttrack/custody-server/internal/middleware"
	"github.com/dnafasttrack/custody-server/internal/services"
	"github.com/dnafasttrack/custody-server/internal/store"
)

func main() {
	// Initialize structured logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		sugar.Fatalf("Failed to load config: %v", err)
	}

	sugar.Infow("Starting DNA FastTrack Custody Server",
		"port", cfg.Port,
		"env", cfg.Environment,
		"store", cfg.StoreDriver,
	)

	ctx := context.Background()

	// Initialize the record store
	st, err := openStore(ctx, cfg)
	if err != nil {
		sugar.Fatalf("Failed to open record store: %v", err)
	}
	defer st.Close()

	// Optional redis client for the rate limiter
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			sugar.Fatalf("Invalid REDIS_URL: %v", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
	}

	// Priority scoring, optionally from a weights file
	prioritySvc := services.NewPriorityService()
	if cfg.PriorityWeightsFile != "" {
		prioritySvc, err = services.LoadPriorityWeights(cfg.PriorityWeightsFile)
		if err != nil {
			sugar.Fatalf("Failed to load priority weights: %v", err)
		}
	}

	// Initialize services
	ledgerSvc := services.NewLedgerService(st, sugar)
	caseworkSvc := services.NewCaseworkService(st, ledgerSvc, prioritySvc, sugar)
	authSvc := services.NewAuthService(st, cfg.JWTSecret, sugar)
	reportSvc := services.NewReportService(caseworkSvc, ledgerSvc, sugar)
	auditor := services.NewChainAuditor(st, ledgerSvc, sugar)

	// Seed the first admin account on an empty store
	if err := authSvc.BootstrapAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		sugar.Fatalf("Failed to bootstrap admin: %v", err)
	}

	// Start background chain auditor
	auditCtx, cancelAudit := context.WithCancel(ctx)
	defer cancelAudit()
	go auditor.Start(auditCtx, time.Duration(cfg.AuditIntervalMinutes)*time.Minute)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(authSvc, sugar)
	caseHandler := handlers.NewCaseHandler(caseworkSvc, ledgerSvc, reportSvc, sugar)
	labHandler := handlers.NewLabAPIHandler(authSvc, caseworkSvc, sugar)
	adminHandler := handlers.NewAdminHandler(authSvc, sugar)
	healthHandler := handlers.NewHealthHandler(st, sugar)

	// Build router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", handlers.APITokenHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Rate limiting
	r.Use(middleware.RateLimit(cfg.RateLimitRPM, rdb, sugar))

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	// API Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check
		r.Get("/health", healthHandler.Check)
		r.Get("/health/ready", healthHandler.Ready)

		// Auth (public)
		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/register", authHandler.Register)
		})

		// Case workflow (web UI, JWT-protected)
		r.Route("/cases", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth(cfg.JWTSecret))
				r.Get("/", caseHandler.List)
				r.Post("/", caseHandler.Create)
				r.Get("/{caseNumber}", caseHandler.Detail)
				r.Post("/{caseNumber}/status", caseHandler.ChangeStatus)
				r.Post("/{caseNumber}/samples", caseHandler.AddSample)
				r.Get("/{caseNumber}/events", caseHandler.Events)
				r.Get("/{caseNumber}/verify", caseHandler.Verify)
				r.Get("/{caseNumber}/report", caseHandler.Report)
			})

			// Partner-lab API (X-API-Token header auth)
			r.Post("/{caseNumber}/receive", labHandler.Receive)
			r.Post("/{caseNumber}/complete", labHandler.Complete)
		})

		// Admin endpoints
		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAuth(cfg.JWTSecret))
			r.Use(middleware.RequireRole("admin"))
			r.Post("/users", adminHandler.CreateUser)
			r.Get("/users", adminHandler.ListUsers)
			r.Post("/labs", adminHandler.CreateLab)
			r.Get("/labs", adminHandler.ListLabs)
		})
	})

	// Serve static files (frontend build)
	r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sugar.Infof("Server listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	sugar.Info("Shutting down gracefully...")
	cancelAudit()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Fatalf("Forced shutdown: %v", err)
	}

	sugar.Info("Server stopped")
}

// openStore builds the configured record store backend.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := database.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewPostgresStore(ctx, pool)
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.SQLitePath)
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
