package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"magicstream/api/routes"
	"magicstream/internal/audit"
	"magicstream/internal/shared/config"
	"magicstream/internal/shared/database"
	"magicstream/internal/shared/middleware"
	"magicstream/internal/tokens"
	"magicstream/internal/users"
	"magicstream/pkg/logger"
	"magicstream/pkg/metrics"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	appLogger := logger.GetDefault()

	// Smart environment loading
	if err := godotenv.Load(); err != nil {
		if os.Getenv("GIN_MODE") == "release" || os.Getenv("DOCKER_CONTAINER") == "true" {
			appLogger.Info("Production environment: using container environment variables")
		} else {
			appLogger.Info("No .env file found, using system environment variables")
		}
	} else {
		appLogger.Info("Development environment: loaded .env file")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		appLogger.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	gin.SetMode(cfg.GinMode)
	// the handler choice in logger.New depends on the gin mode
	appLogger = logger.New()
	logger.SetDefault(appLogger)

	db, err := database.InitDB(cfg)
	if err != nil {
		appLogger.Error("failed to connect", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.New(registry)

	publisher := newAuditPublisher(cfg, appLogger)
	defer func() {
		if err := publisher.Close(); err != nil {
			appLogger.Error("Error closing audit publisher", slog.Any("error", err))
		}
	}()

	userRepo := users.NewRepository(db.PostgreSQL)
	hasher := tokens.NewHasher(cfg.JWT.BcryptCost)

	tokenService, err := tokens.NewService(tokens.Config{
		AccessSecret:  []byte(cfg.JWT.Secret),
		RefreshSecret: []byte(cfg.JWT.RefreshSecret),
		AccessTTL:     cfg.JWT.JWTExpiresIn,
		RefreshTTL:    cfg.JWT.RefreshExpiresIn,
		Issuer:        cfg.JWT.Issuer,
		StoreTimeout:  cfg.JWT.StoreTimeout,
	}, newTokenStore(cfg, db), userRepo, hasher,
		tokens.WithLogger(appLogger),
		tokens.WithMetrics(recorder),
		tokens.WithAuditPublisher(publisher),
	)
	if err != nil {
		appLogger.Error("failed to build token service", slog.Any("error", err))
		os.Exit(1)
	}

	router := setupRouter(cfg, recorder, routes.Dependencies{
		Users:   userRepo,
		Tokens:  tokenService,
		Hasher:  hasher,
		Audit:   publisher,
		Metrics: recorder,
		Logger:  appLogger,
		Health:  db,
	})

	srv := &http.Server{
		Addr:           cfg.GetServerAddress(),
		Handler:        router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	go func() {
		appLogger.Info("Server running",
			slog.String("address", cfg.GetServerAddress()),
			slog.String("health_check", fmt.Sprintf("http://localhost:%s/health", cfg.Port)),
			slog.String("swagger", fmt.Sprintf("http://localhost:%s/swagger/index.html", cfg.Port)),
			slog.String("version", Version),
			slog.String("commit", GitCommit),
			slog.String("built", BuildTime),
			slog.String("token_store", cfg.JWT.TokenStore),
			slog.Bool("audit_kafka", cfg.Kafka.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("Server failed", slog.Any("error", err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Forced shutdown", slog.Any("error", err))
	}

	appLogger.Info("Server exited gracefully")
}

func newTokenStore(cfg *config.Config, db *database.DB) tokens.Store {
	switch cfg.JWT.TokenStore {
	case config.TokenStoreRedis:
		return tokens.NewRedisStore(db.Redis, cfg.JWT.RefreshExpiresIn)
	case config.TokenStoreMemory:
		logger.GetDefault().Warn("Using in-memory token store: refresh tokens do not survive a restart")
		return tokens.NewMemoryStore()
	default:
		return tokens.NewGormStore(db.PostgreSQL)
	}
}

// newAuditPublisher falls back to dropping events when Kafka is disabled or
// unreachable; audit is never allowed to block authentication.
func newAuditPublisher(cfg *config.Config, l *logger.Logger) audit.Publisher {
	if !cfg.Kafka.Enabled {
		return audit.NopPublisher{}
	}

	producerCfg := audit.DefaultKafkaProducerConfig()
	producerCfg.Brokers = cfg.Kafka.Brokers
	producerCfg.Topic = cfg.Kafka.AuditTopic

	publisher, err := audit.NewKafkaPublisher(producerCfg)
	if err != nil {
		l.Error("Failed to initialize audit publisher, continuing without audit events", slog.Any("error", err))
		return audit.NopPublisher{}
	}
	l.Info("Audit publisher initialized", slog.String("topic", producerCfg.Topic))

	// SendMessage waits for broker acks, so it runs off the request path.
	return audit.NewDispatcher(publisher, cfg.Kafka.AuditBuffer, func(event audit.Event, err error) {
		l.Error("Failed to deliver audit event",
			slog.String("event_type", string(event.Type)),
			slog.String("event_id", event.ID.String()),
			slog.Any("error", err),
		)
	})
}

func setupRouter(cfg *config.Config, recorder *metrics.Recorder, deps routes.Dependencies) *gin.Engine {
	engine := gin.New()

	engine.Use(
		middleware.RequestID(),
		middleware.RequestLogger(deps.Logger),
		recorder.Middleware(),
		gin.Recovery(),
	)

	// credentialed requests need explicit origins, "*" is rejected by browsers
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.NewRouter(cfg, deps).SetupRoutes(engine)
	return engine
}
