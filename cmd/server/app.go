package main

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/jimdaga/givethnotes/internal/auth"
	"github.com/jimdaga/givethnotes/internal/blocks"
	"github.com/jimdaga/givethnotes/internal/careerpaths"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/config"
	"github.com/jimdaga/givethnotes/internal/database"
	"github.com/jimdaga/givethnotes/internal/jobstate"
	"github.com/jimdaga/givethnotes/internal/journal"
	"github.com/jimdaga/givethnotes/internal/metrics"
	"github.com/jimdaga/givethnotes/internal/provisioning"
	"github.com/jimdaga/givethnotes/internal/worker"
)

// app holds the wired components shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *gorm.DB
	cal     clock.Calendar
	metrics *metrics.Collector
	cache   *jobstate.RedisCache
	jobs    *jobstate.Store

	engine      *provisioning.Engine
	journal     *journal.Service
	blocks      *blocks.Store
	careerPaths *careerpaths.Service
	users       *auth.Users
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newApp(cfg, clock.New(cfg.Location()))
}

func newApp(cfg *config.Config, cal clock.Calendar) (*app, error) {
	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	db, err := database.Init(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	if cfg.RunMigrations {
		if err := database.RunMigrations(db); err != nil {
			_ = database.Close(db)
			return nil, err
		}
	}
	if cfg.SeedDevData && !cfg.IsProduction() {
		if err := database.SeedDevData(db, cal); err != nil {
			logger.Warn("Failed to seed dev data", "error", err)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	a := &app{cfg: cfg, logger: logger, db: db, cal: cal, metrics: collector}

	var cache jobstate.Cache
	if cfg.RedisURL != "" {
		rc, err := jobstate.NewRedisCache(cfg.RedisURL)
		if err != nil {
			logger.Warn("Job state cache disabled", "error", err)
		} else {
			a.cache = rc
			cache = rc
		}
	}

	validator, err := blocks.NewValidator()
	if err != nil {
		a.close()
		return nil, err
	}

	a.jobs = jobstate.NewStore(db, cache, logger)
	a.engine = provisioning.NewEngine(db, a.jobs, cal, collector, logger)
	a.journal = journal.NewService(db, cal)
	a.blocks = blocks.NewStore(db, a.journal, validator, collector, logger)
	a.careerPaths = careerpaths.NewService(db, cal)
	a.users = auth.NewUsers(db)
	return a, nil
}

func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("Failed to close Redis cache", "error", err)
		}
	}
	if err := database.Close(a.db); err != nil {
		a.logger.Warn("Failed to close database", "error", err)
	}
}
