package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blog-web/internal/cache"
	"blog-web/internal/client"
	"blog-web/internal/config"
	"blog-web/internal/handler"
	"blog-web/internal/messaging"
	"blog-web/shared/authutils"
	sharedLogger "blog-web/shared/logger"
	sharedMiddleware "blog-web/shared/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	ginprometheus "github.com/zsais/go-gin-prometheus"
	"go.uber.org/zap"
)

func main() {
	// --- Configuration ---
	cfg, err := config.LoadConfig(".env")
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger, err := sharedLogger.New(sharedLogger.Config{
		Level:    cfg.LogLevel,
		Encoding: cfg.LogEncoding,
		Service:  "blog-web",
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)
	zap.L().Info("Configuration loaded",
		zap.String("apiBaseURL", cfg.APIBaseURL),
		zap.Bool("production", cfg.IsProduction()),
	)

	// --- External Connections ---
	var redisClient *redis.Client
	var queryCache cache.QueryCache
	if cfg.RedisAddr != "" {
		redisClient, err = setupRedis(cfg)
		if err != nil {
			zap.L().Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		queryCache = cache.NewRedisCache(redisClient, "blogweb:query:", logger)
		zap.L().Info("Connected to Redis, using shared query cache")
	} else {
		queryCache = cache.NewMemoryCache()
		zap.L().Info("REDIS_ADDR not set, using in-memory query cache")
	}

	events := messaging.NewNopPublisher()
	if cfg.RabbitMQURL != "" {
		mqConn, err := messaging.Connect(cfg.RabbitMQURL, 20, 3*time.Second, logger)
		if err != nil {
			zap.L().Fatal("Failed to connect to RabbitMQ", zap.Error(err))
		}
		defer mqConn.Close()
		events, err = messaging.NewRabbitMQPublisher(mqConn, cfg.SessionEventsQueue, logger)
		if err != nil {
			zap.L().Fatal("Failed to create session event publisher", zap.Error(err))
		}
		zap.L().Info("Session events are published to RabbitMQ", zap.String("queue", cfg.SessionEventsQueue))
	}
	defer events.Close()

	// --- Dependency Injection ---
	backend, err := client.NewBackendClient(cfg.APIBaseURL, cfg.ClientTimeout, logger)
	if err != nil {
		zap.L().Fatal("Failed to create backend client", zap.Error(err))
	}
	profiles := client.NewProfileFetcher(backend, queryCache, cfg.ProfileCacheTTL, logger)

	verifier, err := authutils.NewJWTVerifier(cfg.JWTSecret, logger)
	if err != nil {
		zap.L().Fatal("Failed to create JWT verifier", zap.Error(err))
	}

	cookieAttrs := cfg.CookieAttributes()
	classifier := handler.NewPathClassifier(cfg.PublicPaths, cfg.AuthRequiredPaths, cfg.AdminRequiredPaths, cfg.AuthPages)
	guard := handler.NewRouteGuard(verifier, profiles, classifier, cookieAttrs, events, logger)

	apiTarget, err := url.Parse(cfg.APIBaseURL)
	if err != nil {
		zap.L().Fatal("Invalid API base URL", zap.Error(err))
	}
	var pageProxy http.Handler
	if cfg.PageRendererURL != "" {
		pageTarget, err := url.Parse(cfg.PageRendererURL)
		if err != nil {
			zap.L().Fatal("Invalid page renderer URL", zap.Error(err))
		}
		pageProxy = handler.NewPageProxy(pageTarget, logger)
	} else {
		zap.L().Warn("PAGE_RENDERER_URL not set, page requests will return 404")
	}
	apiProxy := handler.NewAPIProxy(apiTarget, queryCache, logger)

	sessionLimiter := handler.NewSessionCheckLimiter(redisClient, cfg.SessionCheckRateLimit, cfg.SessionCheckRateWindow, logger)

	h := handler.NewHandler(handler.Deps{
		Backend:     backend,
		Profiles:    profiles,
		CookieAttrs: cookieAttrs,
		Events:      events,
		APIProxy:    apiProxy,
		PageProxy:   pageProxy,
	}, logger)

	// --- HTTP Server Setup (Gin) ---
	gin.SetMode(gin.ReleaseMode)
	if !cfg.IsProduction() {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()
	router.Use(sharedMiddleware.GinZapLogger(logger))
	router.Use(gin.Recovery())

	p := ginprometheus.NewPrometheus("blogweb")

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.GetAllowedOrigins()
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(guard.Middleware())

	h.RegisterRoutes(router, sessionLimiter)

	// Метрики после регистрации роутов
	p.Use(router)

	// --- Start HTTP Server ---
	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ClientTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	zap.L().Info("Starting HTTP server", zap.String("port", cfg.ServerPort), zap.String("siteURL", cfg.SiteURL()))

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("HTTP Server listen error", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	zap.L().Info("Server exiting")
}

// setupRedis подключается к Redis с повторными попытками.
func setupRedis(cfg *config.Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	var lastErr error
	maxRetries := 10
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		attempt := i + 1
		client := redis.NewClient(opts)

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_, err := client.Ping(pingCtx).Result()
		pingCancel()

		if err == nil {
			zap.L().Info("Successfully connected and pinged Redis", zap.Int("attempt", attempt))
			return client, nil
		}

		client.Close()
		lastErr = err
		zap.L().Warn("Redis ping failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err),
		)
		if i < maxRetries-1 {
			time.Sleep(retryDelay)
		}
	}

	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", maxRetries, lastErr)
}
