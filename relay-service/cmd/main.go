package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/weiawesome/wes-dm-relay/pkg/database"
	"github.com/weiawesome/wes-dm-relay/pkg/jwt"
	pkglog "github.com/weiawesome/wes-dm-relay/pkg/log"
	"github.com/weiawesome/wes-dm-relay/pkg/middleware"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/cache"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/config"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/events"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/handler"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/hub"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/repository"
	"github.com/weiawesome/wes-dm-relay/relay-service/internal/service"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// 2. Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "relay-service",
	})
	logger := pkglog.L()

	// 3. Init DB and schema
	db, err := database.New(cfg.Database.ToDatabaseConfig())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to get underlying sql.DB")
	}
	defer sqlDB.Close()

	if err := repository.Migrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate database")
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	// 4. Init user cache (optional)
	var userCache cache.UserCache = cache.NewNoopUserCache()
	if cfg.Redis.Address != "" {
		rc, err := cache.NewRedisUserCache(cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to connect to redis, user cache disabled")
		} else {
			userCache = rc
			logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
		}
	} else {
		logger.Warn().Msg("REDIS_ADDRESS not configured; user cache disabled")
	}
	defer userCache.Close()

	// 5. Init event publisher (optional)
	var publisher events.Publisher = events.NoopPublisher{}
	if brokers := cfg.Kafka.BrokerList(); len(brokers) > 0 {
		p, err := events.NewConfluentPublisher(brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to create kafka producer, events disabled")
		} else {
			publisher = p
			logger.Info().Str("topic", cfg.Kafka.Topic).Msg("kafka event producer started")
		}
	} else {
		logger.Warn().Msg("KAFKA_BROKERS not configured; events disabled")
	}

	// 6. Auth
	tokens, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.Issuer)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager, set JWT_SECRET")
	}
	authMiddleware := middleware.NewAuthMiddleware(tokens)

	// 7. Repositories and services
	userRepo := repository.NewGormUserRepository(db)
	messageRepo := repository.NewGormMessageRepository(db, repository.NewIDGenerator())
	requestRepo := repository.NewGormChatRequestRepository(db)
	users := service.NewUserDirectory(userRepo, userCache, cfg.Redis.UserTTL)

	connHub := hub.NewHub()
	deliverySvc := service.NewDeliveryService(connHub, messageRepo, publisher, cfg.Delivery)
	contactSvc := service.NewContactService(requestRepo, users, publisher, cfg.Contacts)
	accountSvc := service.NewAccountService(userRepo, users, tokens, cfg.Auth.BcryptCost)

	// 8. Setup Gin router + HTTP server
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewHandler(accountSvc, contactSvc, deliverySvc, authMiddleware).RegisterRoutes(r)
	handler.NewWSHandler(deliverySvc, authMiddleware, cfg.WebSocket).RegisterRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info().Str("addr", addr).Msg("relay-service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// 9. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutdown signal received")

	// Hijacked websocket connections are not drained by Shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server forced to shutdown")
	}

	connHub.CloseAll()

	if err := publisher.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing event publisher")
	}

	logger.Info().Msg("relay-service stopped")
}
