package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-telemetry/internal/api"
	"github.com/signalsfoundry/constellation-telemetry/internal/config"
	"github.com/signalsfoundry/constellation-telemetry/internal/engine"
	"github.com/signalsfoundry/constellation-telemetry/internal/logging"
	"github.com/signalsfoundry/constellation-telemetry/internal/observability"
	"github.com/signalsfoundry/constellation-telemetry/internal/seed"
)

func newRunCommand() *cobra.Command {
	var (
		tick     time.Duration
		httpAddr string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the engine and serve its state over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("tick") {
				cfg.TickInterval = tick
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTPAddr = httpAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runEngine(cmd.Context(), cfg, duration)
		},
	}
	cmd.Flags().DurationVar(&tick, "tick", config.DefaultTickInterval, "tick interval")
	cmd.Flags().StringVar(&httpAddr, "http-addr", config.DefaultHTTPAddr, "HTTP listen address; empty disables the API")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long; 0 runs until interrupted")
	return cmd
}

func loadConfig() (config.Config, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return config.Config{}, err
	}
	if seedPath != "" {
		cfg.SeedPath = seedPath
	}
	return cfg, nil
}

func runEngine(parent context.Context, cfg config.Config, duration time.Duration) error {
	if parent == nil {
		parent = context.Background()
	}
	log := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewEngineCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	snap, err := seed.Load(cfg.SeedPath)
	if err != nil {
		return err
	}
	eng, err := engine.New(snap,
		engine.WithLogger(log),
		engine.WithCollector(collector),
		engine.WithTickInterval(cfg.TickInterval),
		engine.WithSelectionHandler(func(slot string) {
			log.Info(context.Background(), "satellite selected", logging.String("orbit_slot", slot))
		}),
	)
	if err != nil {
		return fmt.Errorf("engine did not start: %w", err)
	}

	var srv *http.Server
	if cfg.HTTPAddr != "" {
		srv = &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: api.NewServer(eng, api.Options{
				CORSOrigins: cfg.CORSOrigins,
				RateLimit: api.RateLimitConfig{
					Enabled:           cfg.RateLimit.Enabled,
					RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
					Burst:             cfg.RateLimit.Burst,
				},
				Metrics: collector.Handler(),
				Logger:  log,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error(ctx, "http server exited", logging.Err(err))
			}
		}()
		log.Info(ctx, "serving dashboard API", logging.String("addr", cfg.HTTPAddr))
	}

	if err := eng.Run(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	eng.Stop()

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return nil
}
