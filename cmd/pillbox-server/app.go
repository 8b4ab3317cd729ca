package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/pillbox/pillbox/internal/config"
	"github.com/pillbox/pillbox/internal/domain/medication"
	"github.com/pillbox/pillbox/internal/domain/preferences"
	"github.com/pillbox/pillbox/internal/platform/db"
	"github.com/pillbox/pillbox/internal/platform/kv"
	"github.com/pillbox/pillbox/internal/platform/middleware"
	"github.com/pillbox/pillbox/internal/platform/notification"
)

// app holds the wired dependencies shared by serve and the reminder commands.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	loc    *time.Location

	checker   db.Checker
	kv        *kv.Store
	prefs     *preferences.Service
	scheduler *notification.LocalScheduler
	store     *medication.Store

	closers []func()
}

func bootLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	logger := bootLogger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.loc, err = cfg.Location(); err != nil {
		return nil, err
	}

	repo, err := a.openRepository(ctx)
	if err != nil {
		return nil, err
	}

	if a.kv, err = kv.Open(cfg.KVPath); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { a.kv.Close() })

	a.prefs = preferences.NewService(preferences.NewKVRepo(a.kv), logger)

	var deliverer notification.Deliverer = notification.NewLogDeliverer(logger)
	if cfg.PushoverEnabled() {
		deliverer = notification.NewPushoverDeliverer(cfg.PushoverAPIToken, cfg.PushoverUserKey, cfg.PushoverDevice)
		logger.Info().Msg("pushover delivery enabled")
	}
	a.scheduler = notification.NewLocalScheduler(a.kv, a.loc, deliverer, a.prefs, logger)

	reminders := medication.NewReminders(a.scheduler, notification.NewTemplateEngine(), logger)
	a.store = medication.NewStore(repo, reminders, logger)
	return a, nil
}

func (a *app) openRepository(ctx context.Context) (medication.Repository, error) {
	switch a.cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := db.NewPool(ctx, a.cfg.DatabaseURL, a.cfg.DBMaxConns, a.cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if _, err := db.NewPostgresMigrator(pool).Up(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		a.checker = db.PoolChecker{Pool: pool}
		a.logger.Info().Msg("connected to postgres")
		return medication.NewPGRepo(pool), nil

	default:
		h := db.NewSQLiteHandle(a.cfg.SQLitePath)
		sqlDB, err := h.DB(ctx)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { h.Close() })
		a.checker = db.SQLChecker{DB: sqlDB}
		a.logger.Info().Str("path", a.cfg.SQLitePath).Msg("opened sqlite database")
		return medication.NewSQLiteRepo(h), nil
	}
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func newServer(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderContentType, middleware.RequestIDHeader},
	}))

	e.GET("/health", db.HealthHandler(a.checker))

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
	}))
	medication.NewHandler(a.store, a.loc).RegisterRoutes(apiV1)
	notification.NewHandler(a.scheduler).RegisterRoutes(apiV1)
	preferences.NewHandler(a.prefs).RegisterRoutes(apiV1)

	return e
}
