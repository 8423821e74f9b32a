//go:build linux

package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/searchktools/fast-static/config"
	"github.com/searchktools/fast-static/core"
	"github.com/searchktools/fast-static/core/pools"
)

// shutdownTimeout bounds how long in-flight requests may delay exit
const shutdownTimeout = 10 * time.Second

// App is the application instance serving a resource directory
type App struct {
	cfg    *config.Config
	log    zerolog.Logger
	engine *core.Engine
}

// New creates an application instance
func New(cfg *config.Config) *App {
	return NewWithLogger(cfg, NewLogger(cfg, nil))
}

// NewWithLogger creates an application instance logging to log
func NewWithLogger(cfg *config.Config, log zerolog.Logger) *App {
	engine := core.NewEngine(EngineOptions(cfg), log)
	return &App{
		cfg:    cfg,
		log:    log,
		engine: engine,
	}
}

// EngineOptions maps configuration onto engine options
func EngineOptions(cfg *config.Config) core.Options {
	return core.Options{
		Port:           cfg.Port,
		TrigMode:       cfg.TrigMode,
		IdleTimeout:    cfg.IdleTimeout(),
		OptLinger:      cfg.OptLinger,
		Workers:        cfg.ThreadNumber,
		MaxConnections: cfg.MaxConnections,
		Root:           cfg.ResourceDir,
	}
}

// Engine returns the underlying engine
func (a *App) Engine() *core.Engine {
	return a.engine
}

// Run starts the application and blocks until a signal stops it
func (a *App) Run() {
	prev := pools.ApplyGCConfig(pools.GCConfig{GOGC: a.cfg.GCPercent})
	a.log.Info().
		Int("gogc", a.cfg.GCPercent).
		Int("previous_gogc", prev).
		Str("env", a.cfg.Env).
		Msg("fast-static starting")

	if err := a.engine.Listen(); err != nil {
		a.log.Fatal().Err(err).Int("port", a.cfg.Port).Msg("server startup failed")
	}

	go a.awaitSignal()

	if err := a.engine.Serve(); err != nil {
		a.log.Fatal().Err(err).Msg("event loop failed")
	}

	gc := pools.GetGCStats()
	a.log.Info().
		RawJSON("stats", []byte(a.engine.StatsJSON())).
		Uint32("num_gc", gc.NumGC).
		Dur("gc_pause_total", gc.PauseTotal).
		Msg("server stopped")
}

func (a *App) awaitSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	a.log.Info().Str("signal", sig.String()).Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.engine.Shutdown(ctx); err != nil {
		a.log.Error().Err(err).Msg("graceful shutdown timed out")
		os.Exit(1)
	}
}
