package server

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/domain/forwarder"
	"slackmemory/internal/domain/gdpr"
	"slackmemory/internal/domain/retention"
	"slackmemory/internal/domain/revocation"
	"slackmemory/internal/domain/rotation"
	"slackmemory/internal/domain/synclog"
	"slackmemory/internal/domain/tokens"
	"slackmemory/internal/platform/config"
	"slackmemory/internal/platform/crypto"
	"slackmemory/internal/platform/db"
	"slackmemory/internal/platform/jobs"
	"slackmemory/internal/platform/metrics"
	"slackmemory/internal/platform/ratelimit"
	"slackmemory/internal/platform/slackclient"
	audithandler "slackmemory/internal/transport/http/handlers/audit"
	gdprhandler "slackmemory/internal/transport/http/handlers/gdpr"
	retentionhandler "slackmemory/internal/transport/http/handlers/retention"
	revocationhandler "slackmemory/internal/transport/http/handlers/revocation"
	rotationhandler "slackmemory/internal/transport/http/handlers/rotation"
	slackhandler "slackmemory/internal/transport/http/handlers/slack"
	"slackmemory/internal/transport/http/middleware"
	"slackmemory/migrations"
)

const notificationChannel = "#security-alerts"

func Run() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, migrations.Files); err != nil {
			log.Fatalf("migrations failed: %v", err)
		}
	}

	metrics.Init()

	crypt, err := crypto.New(cfg.MasterSecret)
	if err != nil {
		log.Fatalf("encryption init failed: %v", err)
	}
	cryptoFor := func(keyID string) (*crypto.Service, error) {
		return crypto.NewWithKeyID(cfg.MasterSecret, keyID)
	}

	auditSvc := audit.NewService(audit.NewPostgresStore(pool), crypt)
	tokenSvc := tokens.NewService(tokens.NewPostgresStore(pool), crypt, auditSvc)

	slackAPI := slackclient.New(ratelimit.New(cfg.SlackRatePerMinute), cfg.SlackAPITimeout)

	revocationSvc := revocation.NewService(tokenSvc, auditSvc, slackAPI, notificationChannel)
	rotationSvc := rotation.NewService(tokenSvc, auditSvc, slackAPI, rotation.Config{
		MaxTokenAge:     cfg.RotationMaxTokenAge,
		RotateOnFailure: cfg.RotateOnFailure,
	}, cryptoFor)

	syncStore := synclog.NewPostgresStore(pool)
	retentionSvc, err := retention.NewService(ctx, retention.NewPostgresStore(pool), tokens.NewPostgresStore(pool), auditSvc, syncStore, cfg.AuditRetentionDays)
	if err != nil {
		log.Fatalf("retention init failed: %v", err)
	}
	forwarderSvc := forwarder.NewService(cfg.SupermemoryAPIURL, cfg.SupermemoryAPIKey, syncStore)
	gdprSvc := gdpr.NewService(tokenSvc, auditSvc, syncStore)

	jobSvc := jobs.New(pool, cfg, rotationSvc, retentionSvc)
	jobSvc.Start(ctx)

	isProd := cfg.Environment == "production"

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(isProd))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	if cfg.MetricsEnabled {
		router.Use(metrics.Instrument)
	}

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if cfg.MetricsEnabled {
		router.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	slackHandler := slackhandler.NewHandler(tokenSvc, forwarderSvc, cfg.SlackClientID, cfg.SlackClientSecret, cfg.SlackRedirectURI)
	slackHandler.RegisterOAuthRoutes(router)
	router.Group(func(r chi.Router) {
		if cfg.SlackSigningSecret != "" {
			r.Use(middleware.SlackSignature(cfg.SlackSigningSecret))
		}
		slackHandler.RegisterEventRoutes(r)
	})

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AdminAuth(cfg.AdminJWTSecret))
		r.Use(middleware.RateLimit(120, time.Minute))

		rotationhandler.NewHandler(rotationSvc).RegisterRoutes(r)
		revocationhandler.NewHandler(revocationSvc, cfg.NotifyOnRevocation).RegisterRoutes(r)
		audithandler.NewHandler(auditSvc).RegisterRoutes(r)
		retentionhandler.NewHandler(retentionSvc).RegisterRoutes(r)
		gdprhandler.NewHandler(gdprSvc).RegisterRoutes(r)
	})

	slog.Info("server listening", "addr", cfg.Addr, "env", cfg.Environment)
	if err := http.ListenAndServe(cfg.Addr, router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
