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

	_ "github.com/alexbrainman/odbc"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"dremio-gateway/internal/config"
	"dremio-gateway/internal/controller"
	"dremio-gateway/internal/database"
	"dremio-gateway/internal/database/drivers"
	"dremio-gateway/internal/database/drivers/bridge"
	"dremio-gateway/internal/database/drivers/flight"
	"dremio-gateway/internal/database/drivers/odbc"
	"dremio-gateway/internal/database/drivers/rest"
	"dremio-gateway/internal/metrics"
	"dremio-gateway/internal/middleware"
	"dremio-gateway/internal/security"
	"dremio-gateway/internal/service"
	"dremio-gateway/pkg/logger"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Init()

	// Protocol drivers
	driverList := []drivers.Driver{
		flight.NewFlightSQLDriver(flight.Options{
			CertPath: cfg.Dremio.SSLCertPath,
			Logger:   logger.WithModule("flight"),
		}),
		bridge.NewJDBCBridgeDriver(bridge.Options{
			ArtifactDir: cfg.Drivers.ArtifactDir,
			Logger:      logger.WithModule("jdbc"),
		}),
		odbc.NewODBCDriver(odbc.Options{
			Logger: logger.WithModule("odbc"),
		}),
		rest.NewRESTDriver(rest.Options{
			RequestTimeout: cfg.Drivers.REST.RequestTimeout,
			PollInterval:   cfg.Drivers.REST.PollInterval,
			MaxWait:        cfg.Drivers.REST.MaxWait,
			ResultLimit:    cfg.Drivers.REST.ResultLimit,
			Logger:         logger.WithModule("rest"),
		}),
	}

	registry := database.NewDriverRegistry(
		database.NewSentinelStore(cfg.Drivers.SentinelDir),
		logger.WithModule("registry"),
		driverList,
		database.WithAllowedProtocols(cfg.Drivers.EnabledProtocols()),
	)
	for _, descriptor := range registry.Probe() {
		logger.Info("protocol probed",
			zap.String("protocol", string(descriptor.Name)),
			zap.Bool("available", descriptor.Available),
			zap.Bool("enabled", descriptor.Enabled),
			zap.String("reason", descriptor.DisabledReason))
	}

	resolver := database.NewConnectionConfigResolver(database.ResolverConfig{
		ArtifactDir:        cfg.Drivers.ArtifactDir,
		ODBCLibraryDirs:    cfg.Drivers.ODBCLibraryPaths,
		ODBCLibraryPattern: cfg.Drivers.ODBCLibraryPattern,
		ODBCDriverNames:    cfg.Drivers.ODBCDriverNames,
		SSLVerify:          cfg.Dremio.SSLVerify,
	})
	establisher := database.NewConnectionEstablisher(registry, nil, cfg.Drivers.ConnectTimeout, logger.WithModule("establisher"))

	var sqlValidator *security.SQLValidator
	if cfg.Security.ReadOnlyQueries {
		sqlValidator = security.NewSQLValidator(cfg.Security.MaxQueryLength)
	}

	dremioService := service.NewDremioService(cfg.Dremio, cfg.Drivers, service.ServiceDeps{
		Registry:    registry,
		Resolver:    resolver,
		Establisher: establisher,
		Validator:   sqlValidator,
		HTTPClient:  &http.Client{Timeout: cfg.Drivers.REST.RequestTimeout},
		Logger:      logger.WithModule("service"),
	})

	// Controllers
	queryController := controller.NewQueryController(dremioService)
	driverController := controller.NewDriverController(dremioService)
	healthController := controller.NewHealthController(dremioService, version)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.PrometheusMiddleware())

	var rateLimiter *middleware.RateLimiter
	if cfg.Security.EnableRateLimit {
		rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RPM:             cfg.Security.RateLimitPerMinute,
			Burst:           cfg.Security.RateLimitBurst,
			CleanupInterval: 5 * time.Minute,
		})
		defer rateLimiter.Stop()
	}

	router.GET("/health", healthController.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	if cfg.Security.EnableAuth {
		authMiddleware := security.NewAuthMiddleware(security.NewJWTManager(cfg.Security.JWTSecret, cfg.Security.JWTExpiration))
		api.Use(authMiddleware.RequireAuth())
	}
	if rateLimiter != nil {
		api.Use(rateLimiter.RateLimit())
	}
	{
		api.GET("/drivers", driverController.ListDrivers)
		api.GET("/projects", driverController.ListProjects)
		api.GET("/stats", driverController.GetStats)
		api.POST("/query", queryController.ExecuteQuery)
		api.POST("/test-connection", queryController.TestConnection)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	if err := dremioService.Close(); err != nil {
		logger.Warn("failed to close connections", zap.Error(err))
	}
}
