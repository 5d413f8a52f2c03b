package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/class-measures-api/internal/handler"
	"github.com/noah-isme/class-measures-api/internal/repository"
	"github.com/noah-isme/class-measures-api/internal/service"
	"github.com/noah-isme/class-measures-api/pkg/config"
	"github.com/noah-isme/class-measures-api/pkg/database"
	"github.com/noah-isme/class-measures-api/pkg/jobs"
	"github.com/noah-isme/class-measures-api/pkg/logger"
	"github.com/noah-isme/class-measures-api/pkg/observability"
	"github.com/noah-isme/class-measures-api/pkg/storage"
)

// @title Class Measures API
// @version 1.0.0
// @description Administration API for a tutoring business: students, programs, sessions, attendance, inventory and reports.
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	flush, err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env, cfg.Sentry.Release)
	if err != nil {
		logr.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}
	if version, err := database.MigrationVersion(db); err == nil {
		logr.Info("database schema ready", zap.Int64("version", version))
	}

	app := buildApp(ctx, cfg, db, connectRedis(ctx, cfg, logr), logr)
	defer app.shutdown()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newRouter(cfg, app, logr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// connectRedis returns nil when Redis is unreachable; analytics then run uncached.
func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) *redis.Client {
	if !cfg.Analytics.Enabled {
		return nil
	}
	client, err := database.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, analytics cache disabled", zap.Error(err))
		return nil
	}
	return client
}

type app struct {
	auth       *service.AuthService
	users      *service.UserService
	students   *service.StudentService
	programs   *service.ProgramService
	resources  *service.ResourceService
	sessions   *service.SessionService
	attendance *service.AttendanceService
	analytics  *service.AnalyticsService
	reports    *service.ReportService
	metrics    *service.MetricsService
	auditLog   *repository.UserRepository
	readiness  map[string]handler.ReadinessCheck

	shutdown func()
}

func buildApp(ctx context.Context, cfg *config.Config, db *sqlx.DB, redisClient *redis.Client, logr *zap.Logger) *app {
	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	programRepo := repository.NewProgramRepository(db)
	resourceRepo := repository.NewResourceRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	analyticsRepo := repository.NewAnalyticsRepository(db)
	reportRepo := repository.NewReportRepository(db)

	cacheOpts := service.CacheOptions{
		Enabled:   redisClient != nil,
		TTL:       cfg.Analytics.CacheTTL,
		Namespace: cfg.Redis.KeyPrefix,
	}
	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, cacheOpts, metrics, logr)

	students := service.NewStudentService(studentRepo, cacheSvc, validate, logr)
	a := &app{
		auth: service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
			AccessTokenSecret:  cfg.JWT.Secret,
			AccessTokenExpiry:  cfg.JWT.Expiration,
			RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
			Issuer:             cfg.JWT.Issuer,
		}),
		users:      service.NewUserService(userRepo, validate, logr),
		students:   students,
		programs:   service.NewProgramService(programRepo, studentRepo, userRepo, metrics, cacheSvc, validate, logr),
		resources:  service.NewResourceService(resourceRepo, userRepo, metrics, cacheSvc, cfg.Inventory.LowStockThreshold, validate, logr),
		sessions:   service.NewSessionService(sessionRepo, programRepo, userRepo, metrics, cacheSvc, validate, logr),
		attendance: service.NewAttendanceService(sessionRepo, students, metrics, cacheSvc, validate, logr),
		analytics:  service.NewAnalyticsService(analyticsRepo, studentRepo, resourceRepo, cacheSvc, metrics, logr),
		metrics:    metrics,
		auditLog:   userRepo,
	}

	a.readiness = map[string]handler.ReadinessCheck{"postgres": db.PingContext}
	if redisClient != nil {
		a.readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	closers := []func(){}
	if redisClient != nil {
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Fatal("failed to prepare report storage", zap.Error(err))
		}
		signer := storage.NewDownloadSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		exporter := service.NewExportService(service.ExportSources{
			Students:  studentRepo,
			Programs:  analyticsRepo,
			Resources: resourceRepo,
			Sessions:  sessionRepo,
		}, store, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix, ResultTTL: cfg.Reports.SignedURLTTL}, logr, nil)

		worker := service.NewReportWorker(reportRepo, exporter, cfg.Reports.WorkerRetries, metrics, logr)
		queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)
		closers = append(closers, queue.Stop)

		a.reports = service.NewReportService(reportRepo, queue, exporter, validate, logr, service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		})
		a.reports.RecoverPendingJobs(ctx)
		a.reports.StartCleanup(ctx)
	}

	a.shutdown = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return a
}
