package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	auditHandler "aegis/internal/audit/handler"
	auditmetrics "aegis/internal/audit/metrics"
	auditservice "aegis/internal/audit/service"
	auditstore "aegis/internal/audit/store"
	checklistHandler "aegis/internal/checklist/handler"
	checklistservice "aegis/internal/checklist/service"
	checkliststore "aegis/internal/checklist/store"
	"aegis/internal/health/gate"
	healthHandler "aegis/internal/health/handler"
	healthmetrics "aegis/internal/health/metrics"
	healthservice "aegis/internal/health/service"
	healthstore "aegis/internal/health/store"
	healthworker "aegis/internal/health/worker"
	"aegis/internal/jwtauth"
	"aegis/internal/notify"
	"aegis/internal/platform/config"
	"aegis/internal/platform/httpserver"
	"aegis/internal/platform/logger"
	"aegis/internal/platform/metrics"
	platformpostgres "aegis/internal/platform/postgres"
	platformredis "aegis/internal/platform/redis"
	httptransport "aegis/internal/transport/http"
)

// main wires stores, services, transports, and the health worker. Every
// infrastructure dependency is optional: with no postgres, redis, or kafka
// configured the process runs fully in-memory for local development.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.Postgres.URL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("ping postgres", "error", err)
			os.Exit(1)
		}
		if err := platformpostgres.ApplySchema(ctx, db); err != nil {
			log.Error("apply schema", "error", err)
			os.Exit(1)
		}
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("connect redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Stores: postgres when configured, in-memory otherwise.
	var (
		templateStore checklistservice.Store
		auditStore    auditservice.Store
		registry      healthservice.Registry
		history       healthservice.AuditHistory
		healthRecords healthservice.Store
	)
	if db != nil {
		templateStore = checkliststore.NewPostgres(db)
		pg := auditstore.NewPostgres(db)
		auditStore, registry, history = pg, pg, pg
		healthRecords = healthstore.NewPostgres(db)
	} else {
		templateStore = checkliststore.NewMemory()
		mem := auditstore.NewMemory()
		auditStore, registry, history = mem, mem, mem
		healthRecords = healthstore.NewMemory()
	}

	// Batch gate: shared watermark in redis when available, then postgres,
	// then process-local.
	var batchGate gate.Store
	switch {
	case redisClient != nil:
		batchGate = gate.NewRedis(redisClient.Client, "aegis:health:last_run")
	case db != nil:
		batchGate = gate.NewPostgres(db, "health_recompute")
	default:
		batchGate = gate.NewMemory()
	}

	// Notification dispatch: kafka when brokers are configured, otherwise an
	// in-process sink.
	var notifier notify.Notifier
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := notify.NewKafka(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, notify.WithKafkaLogger(log))
		if err != nil {
			log.Error("connect kafka", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		notifier = kafka
	} else {
		notifier = notify.NewMemory()
	}

	checklistSvc, err := checklistservice.New(templateStore, checklistservice.WithLogger(log))
	if err != nil {
		log.Error("build checklist service", "error", err)
		os.Exit(1)
	}
	auditSvc, err := auditservice.New(auditStore, checklistSvc,
		auditservice.WithLogger(log),
		auditservice.WithNotifier(notifier),
		auditservice.WithMetrics(auditmetrics.New()),
	)
	if err != nil {
		log.Error("build audit service", "error", err)
		os.Exit(1)
	}
	healthSvc, err := healthservice.New(registry, history, healthRecords, batchGate, cfg.Health.Interval,
		healthservice.WithLogger(log),
		healthservice.WithMetrics(healthmetrics.New()),
		healthservice.WithConcurrency(cfg.Health.Concurrency),
	)
	if err != nil {
		log.Error("build health service", "error", err)
		os.Exit(1)
	}

	checks := map[string]func(context.Context) error{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	tokens := jwtauth.New(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	router := httptransport.NewRouter(httptransport.Deps{
		Checklist: checklistHandler.New(checklistSvc, log),
		Audit:     auditHandler.New(auditSvc, log),
		Health:    healthHandler.New(healthSvc, log),
		Validator: jwtauth.NewValidator(tokens),
		Metrics:   metrics.New(),
		Logger:    log,
		Checks:    checks,
	})

	worker := healthworker.New(healthSvc, cfg.Health.PollInterval, log)
	go worker.Run(ctx)

	srv := httpserver.New(cfg.Server.Addr, router)
	go func() {
		log.Info("starting aegis", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}
