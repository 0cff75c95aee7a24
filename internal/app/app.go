package app

import (
	"context"
	"educube_backend/internal/config"
	"educube_backend/internal/controller"
	"educube_backend/internal/repository"
	"educube_backend/internal/service"
	"educube_backend/pkg/configwatcher"
	"educube_backend/pkg/database"
	"educube_backend/pkg/logger"
	"educube_backend/pkg/monitoring"
	"educube_backend/pkg/security"
	"educube_backend/pkg/tracing"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const configFile = "configs/config.yaml"

type App struct {
	Config          *config.Config
	Router          *gin.Engine
	DB              *gorm.DB
	Redis           *redis.Client
	services        *services
	cron            *cron.Cron
	tracer          *sdktrace.TracerProvider
	configCallbacks []func(*config.Config)
}

type repositories struct {
	course     *repository.CourseRepository
	enrollment *repository.EnrollmentRepository
}

type services struct {
	storage    *service.StorageService
	upload     *service.UploadService
	course     *service.CourseService
	enrollment *service.EnrollmentService
}

type controllers struct {
	course     *controller.CourseController
	enrollment *controller.EnrollmentController
	upload     *controller.UploadController
	health     *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) initRepositories(db *gorm.DB, rdb *redis.Client) *repositories {
	return &repositories{
		course:     repository.NewCourseRepository(db, rdb),
		enrollment: repository.NewEnrollmentRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.upload = service.NewUploadService(s.storage)
	s.course = service.NewCourseService(repos.course, s.upload)

	var locker service.KeyLocker = service.NewLocalLocker()
	if rdb != nil {
		locker = service.NewRedisLocker(rdb)
	}
	s.enrollment = service.NewEnrollmentService(repos.enrollment, repos.course, locker)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	maxUpload := a.Config.Storage.MaxUploadMB << 20
	return &controllers{
		course:     controller.NewCourseController(s.course, s.enrollment, maxUpload),
		enrollment: controller.NewEnrollmentController(s.enrollment),
		upload:     controller.NewUploadController(s.upload, maxUpload),
		health:     controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

// startBackgroundTasks 每分钟发布到达预定时间的课程
func (a *App) startBackgroundTasks(s *services) {
	a.cron = cron.New()
	_, err := a.cron.AddFunc("@every 1m", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.course.PublishDue(ctx); err != nil {
			logger.Log.Error("scheduled publish error", zap.Error(err))
		}
	})
	if err != nil {
		logger.Log.Error("Failed to schedule publish job", zap.Error(err))
		return
	}
	a.cron.Start()
}

func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	gin.SetMode(cfg.Server.Mode)

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode == gin.DebugMode)
	if err != nil {
		logger.Log.Error("Failed to initialize database", zap.Error(err))
		return nil, err
	}

	// release 模式默认不迁移，需显式指定 -migrate
	if cfg.Server.Mode != gin.ReleaseMode || cfg.ForceMigrate {
		if err := database.Migrate(db); err != nil {
			logger.Log.Error("Failed to migrate database", zap.Error(err))
			return nil, err
		}
	}

	app := &App{
		Config: cfg,
		DB:     db,
	}
	if cfg.MigrateOnly {
		return app, nil
	}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			logger.Log.Error("Failed to initialize redis", zap.Error(err))
			return nil, err
		}
		app.Redis = rdb
	}

	repos := app.initRepositories(db, app.Redis)
	services := app.initServices(repos, cfg, app.Redis)
	app.services = services
	controllers := app.initControllers(services, db, app.Redis)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("educube", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Error("Failed to initialize tracing", zap.Error(err))
			return nil, err
		}
		app.tracer = tp
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.Mode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, cfg)
	router.Static("/uploads", cfg.Storage.LocalPath)

	app.RegisterConfigCallback(logger.SetLevel)
	app.startBackgroundTasks(services)

	return app, nil
}

func (a *App) watchConfig(ctx context.Context) {
	if _, err := os.Stat(configFile); err != nil {
		return
	}
	go func() {
		err := configwatcher.WatchConfig(ctx, filepath.Clean(configFile), func(newCfg *config.Config) {
			for _, cb := range a.configCallbacks {
				cb(newCfg)
			}
		})
		if err != nil {
			logger.Log.Warn("Config watcher stopped", zap.Error(err))
		}
	}()
}

func (a *App) Run() error {
	srv := &http.Server{
		Addr:         ":" + a.Config.Server.Port,
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.watchConfig(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}
	logger.Log.Info("Shutting down server...")

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.Close(shutdownCtx)
	logger.Log.Info("Server exiting")
	return nil
}

// Close 释放外部连接
func (a *App) Close(ctx context.Context) {
	if a.tracer != nil {
		if err := a.tracer.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		sqlDB.Close()
	}
}
