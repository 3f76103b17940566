package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/nk/pkg/engine"
)

func newPlanCommand() *cobra.Command {
	var (
		filter   string
		dotFile  string
		validate bool
		offline  bool
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which plugins would run, in order",
		Long: `Plan resolves the state and matches it to plugins without running any.

Plugins are listed in the order provision would run them, with the
declarations they provision. States no plugin accepts are listed last.`,
		Example: `  # Show the execution order
  nk plan

  # Check schemas and policies as well
  nk plan --validate

  # Write the plugin dependency graph
  nk plan --dot plan.dot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := loadEnvironment(ctx, envOptions{offline: offline})
			if err != nil {
				return err
			}
			defer env.Close(context.WithoutCancel(ctx))

			policies, err := env.policies(ctx)
			if err != nil {
				return err
			}

			reporter := newTerminalReporter(cmd.OutOrStdout(), false)
			p := env.pipeline(reporter, policies)

			plan, err := p.Plan(ctx, filter)
			if err != nil {
				return err
			}
			writePlan(cmd.OutOrStdout(), plan)

			if dotFile != "" {
				if err := os.WriteFile(dotFile, []byte(plan.Graph.ToDOT()), 0o644); err != nil {
					return fmt.Errorf("failed to write graph: %w", err)
				}
				log.Info().Str("file", dotFile).Msg("Wrote execution graph")
			}

			if validate {
				if err := p.Validate(ctx, plan); err != nil {
					return err
				}
				_, _ = changedColor.Fprintln(cmd.OutOrStdout(), "✓ every state is valid")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", "", "only plan states for which this rule holds")
	cmd.Flags().StringVar(&dotFile, "dot", "", "write the execution graph in DOT format")
	cmd.Flags().BoolVar(&validate, "validate", false, "validate states against schemas and policies")
	cmd.Flags().BoolVar(&offline, "offline", false, "use installed plugins without checking for releases")

	return cmd
}

func writePlan(w io.Writer, plan *engine.Plan) {
	for i, set := range plan.Sets {
		_, _ = headerColor.Fprintf(w, "%d. %s", i+1, set.Plugin.Name())
		n := len(set.States)
		fmt.Fprintf(w, " (%d %s): %s\n", n, plural(n, "state", "states"), strings.Join(set.Declarations(), ", "))
	}
	for _, ds := range plan.Unmatched {
		_, _ = dimColor.Fprintf(w, "- %s: no plugin provisions this state\n", ds.Declaration)
	}
}
