package commands

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/systmms/poolrotate/internal/config"
	dserrors "github.com/systmms/poolrotate/internal/errors"
	"github.com/systmms/poolrotate/internal/health"
	"github.com/systmms/poolrotate/internal/logging"
	"github.com/systmms/poolrotate/internal/poolset"
	"github.com/systmms/poolrotate/pkg/secretsource"
)

func NewCheckCommand(cfg *config.Config) *cobra.Command {
	var (
		secretsPath string
		poolName    string
		ping        bool
		timeout     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the mounted credentials and pool configuration",
		Long: `Read the username and password files once, the way poolrotate does at
startup, and report what was found. The password is never printed.

This command checks:
- Configuration file validity
- Presence and encoding of the username and password files
- Whether a jdbc-url file is present
- With --ping, that every pool can reach its database

Use --pool to check a single pool.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Load(); err != nil {
				return err
			}
			def := cfg.Definition
			def.ApplyOverrides(secretsPath, 0)

			out := cmd.OutOrStdout()
			reader := secretsource.NewDirReader(def.Secrets.Path, secretsource.WithLogger(cfg.Logger.Named("secrets")))

			pair, err := reader.Pair()
			if err != nil {
				return dserrors.SecretError(def.Secrets.Path, err)
			}

			_, _ = fmt.Fprintf(out, "Secrets:   %s\n", reader.Root())
			_, _ = fmt.Fprintf(out, "Username:  %s\n", pair.Username)
			_, _ = fmt.Fprintf(out, "Password:  %s\n", logging.Secret(pair.Password))
			if _, err := reader.ConnectionString(); err != nil {
				_, _ = fmt.Fprintf(out, "JDBC URL:  not present\n")
			} else {
				_, _ = fmt.Fprintf(out, "JDBC URL:  present\n")
			}

			selected := def.Pools
			if poolName != "" {
				p, err := def.GetPool(poolName)
				if err != nil {
					return err
				}
				selected = []config.PoolConfig{p}
			}

			if len(selected) == 0 {
				_, _ = fmt.Fprintf(out, "\nNo pools configured\n")
				return nil
			}

			if !ping {
				displayPools(out, selected, nil)
				return nil
			}

			pools, err := poolset.Build(selected, reader, pair, cfg.Logger.Named("pool"))
			if err != nil {
				return err
			}
			defer func() { _ = pools.Close() }()

			prober := health.NewProber(health.ProberConfig{Timeout: timeout}, nil, nil, cfg.Logger.Named("health"))
			for _, entry := range pools.Entries() {
				prober.Register(health.NewSQLChecker(entry.Config.Name, entry.Pool, health.DefaultSQLConfig()))
			}
			prober.ProbeOnce(cmd.Context())

			names := make([]string, 0, len(selected))
			for _, p := range selected {
				names = append(names, p.Name)
			}
			results, errs := pingResults(prober, names, []string{pair.Password})
			displayPools(out, selected, results)

			healthy := len(results) - len(errs)
			_, _ = fmt.Fprintf(out, "\nSummary: %d/%d pools healthy\n", healthy, len(results))
			if len(errs) > 0 {
				return errors.Join(errs...)
			}

			cfg.Logger.Info("✓ All pools reachable")
			return nil
		},
	}

	cmd.Flags().StringVar(&secretsPath, "secrets-path", "", "Directory holding the username and password files (overrides secrets.path)")
	cmd.Flags().StringVar(&poolName, "pool", "", "Only check the named pool")
	cmd.Flags().BoolVar(&ping, "ping", false, "Open every pool and ping its database")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Timeout for each ping")

	return cmd
}

// pingResults collects the last result for each pool with secrets masked
// out of the messages, plus one PoolError per unhealthy pool.
func pingResults(prober *health.Prober, names []string, secrets []string) (map[string]health.Result, []error) {
	results := make(map[string]health.Result, len(names))
	var errs []error
	for _, name := range names {
		result, ok := prober.Result(name)
		if !ok {
			continue
		}
		result.Message = logging.Redact(result.Message, secrets)

		results[name] = result
		if !result.Healthy {
			errs = append(errs, dserrors.PoolError(name, "ping", errors.New(result.Message)))
		}
	}
	return results, errs
}

// displayPools shows the configured pools in a formatted table. results is
// nil when pools were not pinged.
func displayPools(out io.Writer, pools []config.PoolConfig, results map[string]health.Result) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(w, "\nPOOL\tDRIVER\tMODE\tSTATUS\tMESSAGE\n")
	_, _ = fmt.Fprintf(w, "----\t------\t----\t------\t-------\n")

	for _, p := range pools {
		status := "configured"
		message := ""
		if result, ok := results[p.Name]; ok {
			message = result.Message
			switch result.Status {
			case health.StatusHealthy:
				status = "✓ " + result.Status.String()
			case health.StatusUnhealthy:
				status = "✗ " + result.Status.String()
			default:
				status = "? " + result.Status.String()
			}
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Driver, p.Mode, status, message)
	}

	_ = w.Flush()
}
