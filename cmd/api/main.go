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
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"team-roles/internal/config"
	"team-roles/internal/db"
	"team-roles/internal/domain"
	"team-roles/internal/events"
	apihttp "team-roles/internal/http"
	"team-roles/internal/llm"
	"team-roles/internal/metrics"
	"team-roles/internal/repository"
	"team-roles/internal/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	pipelineCfg, err := config.LoadPipeline(cfg.PipelineConfig)
	if err != nil {
		logger.Fatal("pipeline config", zap.Error(err))
	}

	roles := domain.DefaultRoleCatalog()
	if cfg.RoleCatalog != "" {
		roles, err = domain.LoadRoleCatalog(cfg.RoleCatalog)
		if err != nil {
			logger.Fatal("role catalog", zap.Error(err))
		}
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.Ping(ctx, pool); err != nil {
		logger.Fatal("db ping", zap.Error(err))
	}
	if cfg.MigrationsEnabled {
		if err := db.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := metrics.NewPipeline(registry, "team_roles")

	teamRepo := repository.NewPgTeamRepository(pool)
	sessionRepo := repository.NewPgAssignmentSessionRepository(pool)

	llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout, logger)
	scorer := service.NewScorer(llmClient, service.ScorerConfigFrom(pipelineCfg.Scorer), logger, pipelineMetrics)
	assigner := service.NewAssigner(logger)
	justifier := service.NewJustifier(llmClient, service.JustifierConfigFrom(pipelineCfg.Justifier), logger, pipelineMetrics)
	processor := service.NewProcessor(teamRepo, sessionRepo, scorer, assigner, justifier, roles,
		pipelineCfg.Justifier.Timeout, logger, pipelineMetrics)

	teamLock := service.NewNoopTeamLock()
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, team lock disabled", zap.Error(err))
		} else {
			teamLock = service.NewRedisTeamLock(redisClient, 10*time.Minute, logger)
		}
		cancel()
	}

	queue := service.NewAssignmentQueue(processor, service.QueueConfigFrom(pipelineCfg.Queue), logger,
		service.WithTeamLock(teamLock),
		service.WithQueueMetrics(pipelineMetrics),
	)

	var (
		notifier events.TeamCompletionNotifier = events.NewDirectNotifier(queue, logger)
		natsConn *nats.Conn
		natsSub  *events.NATSSubscriber
	)
	if cfg.NATSURL != "" {
		natsConn, err = events.Connect(cfg.NATSURL, "team-roles", logger)
		if err != nil {
			logger.Fatal("nats connect", zap.Error(err))
		}
		natsSub, err = events.Subscribe(natsConn, cfg.NATSSubject, events.DefaultQueueGroup, queue, logger)
		if err != nil {
			logger.Fatal("nats subscribe", zap.Error(err))
		}
		notifier = events.NewNATSPublisher(natsConn, cfg.NATSSubject)
		logger.Info("team completion events via nats", zap.String("subject", cfg.NATSSubject))
	}

	health := service.NewHealthChecker(sessionRepo, queue, service.HealthConfigFrom(pipelineCfg.Health), logger, pipelineMetrics)
	if pipelineCfg.Health.Enabled {
		health.Start(ctx)
	}

	adminTokens := service.NewAdminTokenService(cfg.AdminJWTSecret)
	if !adminTokens.Enabled() {
		logger.Warn("admin jwt secret not configured, admin api disabled")
	}

	teamHandler := apihttp.NewTeamHandler(logger, teamRepo, notifier)
	assignmentHandler := apihttp.NewAssignmentHandler(logger, processor, queue)
	adminHandler := apihttp.NewAdminHandler(logger, queue, health, processor)
	router := apihttp.NewRouter(logger, apihttp.AdminAuthMiddleware(adminTokens), registry,
		teamHandler, assignmentHandler, adminHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if natsSub != nil {
		if err := natsSub.Close(); err != nil {
			logger.Warn("nats drain", zap.Error(err))
		}
	}
	health.Stop()
	if err := queue.Stop(shutdownCtx); err != nil {
		logger.Warn("queue drain", zap.Error(err))
	}
	if err := processor.WaitBackground(shutdownCtx); err != nil {
		logger.Warn("background justifications still running", zap.Error(err))
	}
	if natsConn != nil {
		natsConn.Close()
	}
	logger.Info("shutdown complete")
}

func newLogger(level string) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if level == "debug" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	return logger
}
