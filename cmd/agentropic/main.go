package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/agentropic/internal/config"
	"github.com/p-blackswan/agentropic/internal/demo"
	"github.com/p-blackswan/agentropic/internal/health"
	"github.com/p-blackswan/agentropic/internal/runtime"
	"github.com/p-blackswan/agentropic/internal/statusapi"
	"github.com/p-blackswan/agentropic/internal/telemetry"
)

var version = "dev"

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	logger := zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.IsDevelopment() {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}
	log.Logger = logger

	logger.Info().
		Str("environment", cfg.Environment).
		Str("version", version).
		Str("status_addr", cfg.StatusListenAddr).
		Int("couriers", cfg.DemoCouriers).
		Msg("starting agentropic")

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("agentropic exited with error")
	}
	logger.Info().Msg("agentropic stopped")
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    "agentropic",
		ServiceVersion: version,
		UseStdout:      cfg.TraceStdout,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	rtCfg := runtime.DefaultConfig()
	demoCfg := demo.Config{
		Couriers:        cfg.DemoCouriers,
		Deliveries:      cfg.DemoDeliveries,
		JamEvery:        4,
		DeliveryTimeout: 30 * time.Second,
	}
	if cfg.RuntimeConfigPath != "" {
		fc, err := runtime.LoadConfig(cfg.RuntimeConfigPath)
		if err != nil {
			return err
		}
		if rtCfg, err = fc.ToRuntimeConfig(); err != nil {
			return err
		}
		if demoCfg, err = demoCfg.Apply(fc.Agents); err != nil {
			return err
		}
		logger.Info().
			Str("path", cfg.RuntimeConfigPath).
			Int("declared_agents", len(fc.Agents)).
			Msg("runtime config loaded")
	}

	rt := runtime.New(rtCfg, logger, runtime.WithTracer(telemetry.Tracer()))
	if _, err := demo.Spawn(rt, demoCfg, logger); err != nil {
		return err
	}

	checker := health.NewChecker(logger)
	checker.Register("runtime", health.RuntimeCheck(rt))

	g, gctx := errgroup.WithContext(ctx)
	runtimeDone := make(chan struct{})

	g.Go(func() error {
		defer close(runtimeDone)
		err := rt.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.StatusEnabled() {
		srv := statusapi.NewServer(statusapi.ServerConfig{
			ListenAddr: cfg.StatusListenAddr,
			Auth: statusapi.AuthConfig{
				Mode:      cfg.StatusAuthMode,
				APIKey:    cfg.StatusAPIKey,
				JWTSecret: []byte(cfg.StatusJWTSecret),
			},
		}, rt, checker, rt.Metrics(), logger)

		g.Go(srv.Start)
		g.Go(func() error {
			// Keeps serving after the runtime quiesces; stops on signal.
			<-gctx.Done()
			<-runtimeDone
			sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}
