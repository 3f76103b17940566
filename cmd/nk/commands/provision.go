package commands

import (
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/nk/pkg/engine"
)

func newProvisionCommand() *cobra.Command {
	var (
		showUnchanged bool
		filter        string
		metricsFile   string
		noHistory     bool
		noSudo        bool
		offline       bool
	)

	cmd := &cobra.Command{
		Use:     "provision",
		Aliases: []string{"p"},
		Short:   "Provision this machine",
		Long: `Provision resolves the state, matches every state to a plugin and runs
the plugins in dependency order.

Nothing is run when a state fails its plugin's schema or a policy denies
it. The run fails if any plugin fails to start, exits with an error,
prints an undecodable line or reports a failed state.`,
		Example: `  # Provision with the .nk.yml of the current directory
  nk provision

  # Also show states that were already in place
  nk p --show-unchanged

  # Only provision the states of one declaration
  nk provision --filter 'declaration == "packages"'

  # Export metrics for the node exporter
  nk provision --metrics-file /var/lib/node_exporter/nk.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if isRoot() {
				return engine.NewConfigurationError("nk should not be run as root", nil).
					WithCode(engine.ErrCodeRunningAsRoot)
			}
			if !noSudo {
				if err := primeSudo(ctx); err != nil {
					return err
				}
			}

			env, err := loadEnvironment(ctx, envOptions{
				metricsFile: metricsFile,
				history:     !noHistory,
				offline:     offline,
			})
			if err != nil {
				return err
			}
			defer env.Close(context.WithoutCancel(ctx))

			policies, err := env.policies(ctx)
			if err != nil {
				return err
			}

			reporter := newTerminalReporter(cmd.OutOrStdout(), showUnchanged)
			runID := uuid.NewString()
			log.Debug().Str("run_id", runID).Msg("Starting provisioning run")

			summary, err := env.pipeline(reporter, policies).Provision(ctx, runID, filter)
			if err == nil || engine.IsExecution(err) {
				reporter.Summary(summary)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&showUnchanged, "show-unchanged", false, "show states that were already provisioned")
	cmd.Flags().StringVar(&filter, "filter", "", "only provision states for which this rule holds")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "write metrics to this node exporter textfile")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "do not record the run")
	cmd.Flags().BoolVar(&noSudo, "no-sudo", false, "do not prompt for sudo credentials before provisioning")
	cmd.Flags().BoolVar(&offline, "offline", false, "use installed plugins without checking for releases")

	return cmd
}

func isRoot() bool {
	return os.Geteuid() == 0
}

// primeSudo asks for sudo credentials once so plugins can use sudo without
// prompting mid-run. Machines without sudo are left alone.
func primeSudo(ctx context.Context) error {
	path, err := exec.LookPath("sudo")
	if errors.Is(err, exec.ErrNotFound) {
		log.Debug().Msg("sudo not found, skipping credential check")
		return nil
	}
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, path, "-v")
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return engine.NewExecutionError("failed to obtain sudo credentials", err)
	}
	return nil
}
