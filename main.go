package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/visual-compare/internal/auth"
	"github.com/example/visual-compare/internal/comparator"
	"github.com/example/visual-compare/internal/config"
	"github.com/example/visual-compare/internal/handlers"
	"github.com/example/visual-compare/internal/logging"
	"github.com/example/visual-compare/internal/repository"
	"github.com/example/visual-compare/internal/tools"
	"github.com/example/visual-compare/internal/usecase"
)

const redisNamespace = "visual-compare"

func main() {
	configFile := flag.String("config", "", "Path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg.DatabaseDSN, logger)
	repo := repository.NewComparisonRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg.RedisAddr, logger)
	defer redisClient.Close()

	cmp := comparator.New(
		comparator.WithHeaders(cfg.HeaderMap()),
		comparator.WithLogger(logger),
	)
	registry := tools.NewRegistry()
	if err := registry.Register(tools.NewVisualIdentityCompareTool(cmp)); err != nil {
		logger.Fatal("tool registration failed", zap.Error(err))
	}
	uc := usecase.NewComparisonUseCase(repo, usecase.NewRedisCache(redisClient, redisNamespace), cmp, logger)

	r := gin.Default()
	handlers.RegisterRoutes(r, registry, uc, auth.Middleware(cfg.JWTSecret, cfg.JWTAudience))
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set, tool endpoints are unauthenticated")
	}

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	logger.Info("tool service listening", zap.String("addr", cfg.ListenAddr), zap.Strings("tools", toolNames(registry)))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, dsn string, zapLogger *zap.Logger) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func toolNames(registry *tools.Registry) []string {
	defs := registry.Definitions()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, sigCh)
}

// serveHTTPServerWithOptions serves until the server fails or a signal
// arrives, then drains in-flight tool invocations for up to shutdownTimeout.
// A nil listener makes the server listen on its own Addr.
func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener == nil {
			err = server.ListenAndServe()
		} else {
			err = server.Serve(listener)
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var sig os.Signal
	select {
	case err := <-errCh:
		return err
	case s, ok := <-signalCh:
		if !ok {
			return <-errCh
		}
		sig = s
	}

	logger.Info("received shutdown signal, draining", zap.String("signal", sig.String()), zap.Duration("timeout", shutdownTimeout))
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return <-errCh
}
