package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablegate/internal/aml"
	"stablegate/internal/blacklist"
	"stablegate/internal/identity"
	jwttoken "stablegate/internal/jwt_token"
	"stablegate/internal/platform/config"
	"stablegate/internal/platform/httpserver"
	"stablegate/internal/platform/logger"
	"stablegate/internal/platform/metrics"
	platformredis "stablegate/internal/platform/redis"
	"stablegate/internal/provider"
	"stablegate/internal/reserve"
	"stablegate/internal/token"
	"stablegate/pkg/platform/audit"
)

const (
	jwtIssuer   = "stablegate"
	jwtAudience = "stablegate-api"
)

// main wires the stores, services, and HTTP surface. Business rules live in
// the internal feature packages; everything here is plumbing.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	platformMetrics := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Durable stores. Without POSTGRES_URL everything runs in memory, which
	// is how the integration harness and local development boot.
	var db *sql.DB
	if cfg.PostgresURL != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			log.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			log.Error("postgres ping failed", "error", err)
			os.Exit(1)
		}
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Audit events go to Kafka when brokers are configured; the in-memory
	// store keeps local runs self-contained.
	var auditStore audit.Store
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaStore, err := audit.NewKafkaStore(ctx, cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer kafkaStore.Close()
		auditStore = kafkaStore
	} else {
		log.Warn("no kafka brokers configured, audit events stay in memory")
		auditStore = audit.NewInMemoryStore()
	}
	auditor := audit.NewPublisher(auditStore)

	var (
		identityStore  identity.Store
		providerStore  provider.Store
		blacklistStore blacklist.Store
		authorityStore aml.AuthorityStore
		alertStore     aml.AlertStore
		policyStore    token.PolicyStore
		ledger         token.Ledger
		stateStore     reserve.StateStore
		queueStore     reserve.QueueStore
	)
	if db != nil {
		identityStore = identity.NewPostgres(db)
		providerStore = provider.NewPostgres(db)
		blacklistStore = blacklist.NewPostgres(db)
		authorityStore = aml.NewPostgresAuthorityStore(db)
		alertStore = aml.NewPostgresAlertStore(db)
		policyStore = token.NewPostgresPolicyStore(db)
		ledger = token.NewPostgresLedger(db)
		stateStore = reserve.NewPostgresState(db)
		queueStore = reserve.NewPostgresQueue(db)
	} else {
		log.Warn("no postgres configured, records stay in memory")
		identityStore = identity.NewInMemoryStore()
		providerStore = provider.NewInMemoryStore()
		blacklistStore = blacklist.NewInMemoryStore()
		authorityStore = aml.NewInMemoryAuthorityStore()
		alertStore = aml.NewInMemoryAlertStore()
		policyStore = token.NewInMemoryPolicyStore()
		ledger = token.NewInMemoryLedger()
		stateStore = reserve.NewInMemoryStateStore()
		queueStore = reserve.NewInMemoryQueueStore()
	}

	var blacklistCache *blacklist.Cache
	if redisClient != nil {
		blacklistCache = blacklist.NewCache(redisClient.Client, log)
	}

	identityService := identity.NewService(identityStore, auditor, log,
		identity.WithMetrics(identity.NewMetrics()))
	providerService := provider.NewService(providerStore, identityService, auditor, log,
		provider.WithMetrics(provider.NewMetrics()))
	blacklistService := blacklist.NewService(blacklistStore, auditor, log,
		blacklist.WithCache(blacklistCache),
		blacklist.WithMetrics(blacklist.NewMetrics()))
	amlService := aml.NewService(authorityStore, alertStore, blacklistService, identityService,
		auditor, log,
		aml.WithMetrics(aml.NewMetrics()))
	tokenService := token.NewService(policyStore, ledger, identityService, blacklistService,
		auditor, log,
		token.WithMetrics(token.NewMetrics()))
	reserveService := reserve.NewService(stateStore, queueStore,
		tokenService, tokenService, tokenService, identityService,
		auditor, log,
		reserve.WithMetrics(reserve.NewMetrics()))
	// Every mint consults the reserve before touching the ledger.
	token.WithReserveGuard(reserveService)(tokenService)

	validator := jwttoken.NewJWTService(cfg.JWTSigningKey, jwtIssuer, jwtAudience)

	router := chi.NewRouter()
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	identity.NewHandler(identityService, validator, log, platformMetrics).Register(router)
	provider.NewHandler(providerService, validator, log, platformMetrics).Register(router)
	blacklist.NewHandler(blacklistService, validator, log, platformMetrics).Register(router)
	aml.NewHandler(amlService, validator, log, platformMetrics).Register(router)
	token.NewHandler(tokenService, validator, log, platformMetrics).Register(router)
	reserve.NewHandler(reserveService, validator, log, platformMetrics).Register(router)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting stablegate", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
