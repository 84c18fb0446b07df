package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/systmms/poolrotate/internal/config"
	dserrors "github.com/systmms/poolrotate/internal/errors"
	"github.com/systmms/poolrotate/internal/health"
	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/internal/metrics"
	"github.com/systmms/poolrotate/internal/poolset"
	"github.com/systmms/poolrotate/pkg/rotation"
	"github.com/systmms/poolrotate/pkg/secretsource"
)

const shutdownTimeout = 5 * time.Second

func NewRunCommand(cfg *config.Config) *cobra.Command {
	var (
		secretsPath string
		interval    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the secret files and rotate pool credentials",
		Long: `Open every configured pool with the mounted credentials, then re-read the
username and password files on a fixed delay. When either value changes, every
pool adapter receives the new pair:

- evict pools keep serving and retire old connections as they come back
- refresh pools are rebuilt in place and the old pool is closed
- direct pools read the files themselves on each new connection

The process runs until it receives SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			def := cfg.Definition
			def.ApplyOverrides(secretsPath, interval)
			if err := def.Validate(); err != nil {
				return err
			}

			if !cfg.Debug {
				if err := cfg.Logger.SetLevel(def.Log.Level); err != nil {
					return dserrors.ConfigError{
						Field:      "log.level",
						Value:      def.Log.Level,
						Message:    err.Error(),
						Suggestion: "Use one of: debug, info, warn, error",
					}
				}
			}

			undo, err := maxprocs.Set(maxprocs.Logger(cfg.Logger.Debug))
			defer undo()
			if err != nil {
				cfg.Logger.Warn("Failed to set GOMAXPROCS: %v", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, def, cfg.Logger)
		},
	}

	cmd.Flags().StringVar(&secretsPath, "secrets-path", "", "Directory holding the username and password files (overrides secrets.path)")
	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between credential checks (overrides secrets.refresh_interval)")

	return cmd
}

// serve wires the reader, pools, coordinator, prober and metrics server and
// blocks until ctx is done.
func serve(ctx context.Context, def *config.Definition, logger *logging.Logger) error {
	reader := secretsource.NewDirReader(def.Secrets.Path, secretsource.WithLogger(logger.Named("secrets")))

	initial, err := reader.Pair()
	if err != nil {
		return dserrors.SecretError(def.Secrets.Path, err)
	}
	logger.Info("Loaded credentials for user %s from %s", initial.Username, reader.Root())

	recorder := metrics.NewRecorder()

	pools, err := poolset.Build(def.Pools, reader, initial, logger.Named("pool"))
	if err != nil {
		return err
	}
	defer func() {
		if err := pools.Close(); err != nil {
			logger.Warn("Failed to close pools: %v", err)
		}
	}()

	coord := rotation.NewCoordinator(reader,
		rotation.WithInterval(def.Secrets.RefreshInterval),
		rotation.WithLogger(logger.Named("rotation")),
		rotation.WithRecorder(recorder),
	)
	for _, adapter := range pools.Adapters() {
		if err := coord.Register(adapter); err != nil {
			return err
		}
	}

	var prober *health.Prober
	if def.Probe.Interval > 0 {
		prober = health.NewProber(health.ProberConfig{
			Interval: def.Probe.Interval,
			Timeout:  def.Probe.Timeout,
		}, nil, recorder, logger.Named("health"))
		for _, entry := range pools.Entries() {
			prober.Register(health.NewSQLChecker(entry.Config.Name, entry.Pool, health.DefaultSQLConfig()))
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if def.Metrics.Enabled {
		serverConfig := metrics.DefaultServerConfig()
		serverConfig.Address = def.Metrics.Address
		serverConfig.Path = def.Metrics.Path

		server := metrics.NewServer(serverConfig, recorder.Registry(), healthCheck(coord, prober, pools), logger.Named("metrics"))
		if err := server.Start(); err != nil {
			return dserrors.UserError{
				Message:    "Failed to start metrics server",
				Details:    err.Error(),
				Suggestion: fmt.Sprintf("Choose a free metrics.address instead of %s", def.Metrics.Address),
				Err:        err,
			}
		}
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Stop(shutdownCtx)
		})
	}

	if prober != nil {
		g.Go(func() error {
			return ignoreCanceled(prober.Run(gctx))
		})
	}

	g.Go(func() error {
		return ignoreCanceled(coord.Run(gctx))
	})

	return g.Wait()
}

// healthCheck backs the /health endpoint: healthy once credentials were read
// and no probed pool is unhealthy.
func healthCheck(coord *rotation.Coordinator, prober *health.Prober, pools *poolset.Set) metrics.HealthFunc {
	return func() error {
		if _, ok := coord.Current(); !ok {
			return errors.New("credentials not loaded yet")
		}
		if prober == nil {
			return nil
		}
		for _, entry := range pools.Entries() {
			if prober.GetStatus(entry.Config.Name) == health.StatusUnhealthy {
				return fmt.Errorf("pool %s is unhealthy", entry.Config.Name)
			}
		}
		return nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
