package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/nk/pkg/engine"
	"github.com/openfroyo/nk/pkg/state"
)

func newResolveCommand() *cobra.Command {
	var (
		output   string
		noRender bool
		watch    bool
		offline  bool
	)

	cmd := &cobra.Command{
		Use:     "resolve",
		Aliases: []string{"r"},
		Short:   "Print the resolved state",
		Long: `Resolve merges every state file whose conditions hold on this machine,
seeded with builtin variables, global variables and plugin dependencies,
and prints the result.`,
		Example: `  # Print the resolved state as YAML
  nk resolve

  # Print it as JSON without rendering templates
  nk r -o json --no-render

  # Print it again whenever a state file changes
  nk resolve --watch`,
		Args: cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if output != "yaml" && output != "json" {
				return fmt.Errorf("invalid output format %q: must be yaml or json", output)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			env, err := loadEnvironment(ctx, envOptions{offline: offline})
			if err != nil {
				return err
			}
			defer env.Close(context.WithoutCancel(ctx))

			p := env.pipeline(engine.NopReporter{}, nil)
			show := func() error {
				resolved, err := p.Resolve(ctx, !noRender)
				if err != nil {
					return err
				}
				return writeResolved(cmd.OutOrStdout(), output, resolved)
			}

			if err := show(); err != nil {
				if !watch {
					return err
				}
				cmd.PrintErrf("nk: %v\n", err)
			}
			if !watch {
				return nil
			}

			w, err := state.NewWatcher(env.tel.Logger.NewComponentLogger("watch").Zerolog(), env.cfg.Sources)
			if err != nil {
				return err
			}
			return w.Run(ctx, func() error {
				fmt.Fprintln(cmd.OutOrStdout(), "---")
				return show()
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "output format (yaml, json)")
	cmd.Flags().BoolVar(&noRender, "no-render", false, "do not render templates")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "resolve again when state files change")
	cmd.Flags().BoolVar(&offline, "offline", false, "use installed plugins without checking for releases")

	return cmd
}

func writeResolved(w io.Writer, format string, resolved *state.ResolvedGroup) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(resolved)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(resolved); err != nil {
		return err
	}
	return enc.Close()
}
