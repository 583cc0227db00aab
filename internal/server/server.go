package server

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"pureskin-gateway/internal/config"
	"pureskin-gateway/internal/engine"
	custommiddleware "pureskin-gateway/internal/middleware"
	"pureskin-gateway/internal/repository"
	"pureskin-gateway/internal/service"
	"pureskin-gateway/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config *config.Config
	logger *zap.Logger
	db     *sql.DB
	redis  *redis.Client
}

func NewServer(cfg *config.Config, logger *zap.Logger, db *sql.DB) *Server {
	// Create router
	router := chi.NewRouter()

	// Add basic middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Compress(5))
	router.Use(custommiddleware.CORSMiddleware(nil, cfg.Server.Env != "production"))
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.MetricsMiddleware())
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))

	// Initialize engine client
	engineClient := engine.NewClient(cfg.Engine, logger)

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	refreshTokenRepo := repository.NewRefreshTokenRepository(db)
	favoriteRepo := repository.NewFavoriteRepository(db)

	// Initialize services
	userService := service.NewUserService(userRepo, refreshTokenRepo, cfg.JWT.Secret)
	favoriteService := service.NewFavoriteService(favoriteRepo)
	analysisService := service.NewAnalysisService(engineClient, favoriteRepo, logger)

	// Initialize handlers
	userHandler := transport.NewUserHandler(userService, logger)
	favoriteHandler := transport.NewFavoriteHandler(favoriteService, logger)
	analysisHandler := transport.NewAnalysisHandler(analysisService, cfg.Engine.MaxUploadBytes, logger)

	// Auth middleware; the user service doubles as the identity verifier
	authMiddleware := custommiddleware.AuthMiddleware(userService, logger)
	optionalAuth := custommiddleware.OptionalAuthMiddleware(userService, logger)

	// Rate limit the public analysis routes; fails open when Redis is down
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	rateLimit := custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
		RequestsPerWindow: 60,
		Window:            time.Minute,
		KeyPrefix:         "ratelimit:analysis",
	}, logger)

	// Health check endpoint: gateway is healthy when its database is; the
	// engine's state is reported but does not fail the check, since the
	// favorites surface works without the engine.
	router.Get("/health", healthHandler(db, engineClient))

	// Prometheus metrics
	router.Handle("/metrics", promhttp.Handler())

	// Register routes
	userHandler.RegisterRoutes(router, authMiddleware)
	favoriteHandler.RegisterRoutes(router, authMiddleware)
	router.Group(func(r chi.Router) {
		r.Use(rateLimit)
		analysisHandler.RegisterRoutes(r, optionalAuth)
	})

	server := &Server{
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
			Handler:      router,
			IdleTimeout:  time.Minute,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		config: cfg,
		logger: logger,
		db:     db,
		redis:  redisClient,
	}

	return server
}

func healthHandler(db *sql.DB, engineClient *engine.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]interface{}{"status": "ok"}

		if err := db.PingContext(r.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = "down"
		} else {
			status["database"] = "up"
		}

		if engineHealth, err := engineClient.Health(r.Context()); err != nil {
			status["engine"] = "unreachable"
		} else {
			status["engine"] = engineHealth.Status
		}

		code := http.StatusOK
		if status["status"] != "ok" {
			code = http.StatusServiceUnavailable
		}
		custommiddleware.RespondWithJSON(w, code, status)
	}
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	// Close database connection
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection", zap.Error(err))
		}
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	s.logger.Sync()
	return nil
}
