package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded provisioning runs",
		Long: `History lists the runs recorded in history.db, newest first. Only
counts are recorded, never states or plugin output.`,
		Example: `  # Show the last 20 runs
  nk history

  # Show the plugins and events of one run
  nk history show 6f1c...

  # Keep only the 100 most recent runs
  nk history prune --keep 100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), func(store stores.Store) error {
				runs, err := store.ListRuns(cmd.Context(), limit, 0)
				if err != nil {
					return err
				}
				writeRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")

	cmd.AddCommand(newHistoryShowCommand())
	cmd.AddCommand(newHistoryPruneCommand())

	return cmd
}

func newHistoryShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the plugins and events of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), func(store stores.Store) error {
				return showRun(cmd.Context(), cmd.OutOrStdout(), store, args[0])
			})
		},
	}
}

func newHistoryPruneCommand() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the most recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withHistory(cmd.Context(), func(store stores.Store) error {
				n, err := store.PruneRuns(cmd.Context(), keep)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "pruned %d %s\n", n, plural(int(n), "run", "runs"))
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 100, "number of runs to keep")

	return cmd
}

func withHistory(ctx context.Context, fn func(stores.Store) error) error {
	path, err := config.HistoryPath()
	if err != nil {
		return err
	}
	store, err := stores.Open(ctx, path)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func writeRuns(w io.Writer, runs []*stores.Run) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tDURATION\tPLUGINS\tCHANGED\tUNCHANGED\tFAILED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID,
			r.StartedAt.Local().Format(time.DateTime),
			r.Status,
			r.Duration.Round(time.Millisecond),
			r.Plugins,
			r.Changed,
			r.Unchanged,
			r.Failed+r.Invalid,
		)
	}
}

func showRun(ctx context.Context, w io.Writer, store stores.Store, id string) error {
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return fmt.Errorf("run %s: %w", id, err)
	}

	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Command)
	fmt.Fprintf(w, "  status:   %s\n", run.Status)
	fmt.Fprintf(w, "  started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(w, "  duration: %s\n", run.Duration.Round(time.Millisecond))
	if run.Error != nil {
		fmt.Fprintf(w, "  error:    %s\n", *run.Error)
	}

	prs, err := store.ListPluginRuns(ctx, id)
	if err != nil {
		return err
	}
	if len(prs) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PLUGIN\tSTATUS\tSTATES\tCHANGED\tUNCHANGED\tFAILED\tDURATION")
		for _, pr := range prs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				pr.Plugin, pr.Status, pr.States, pr.Changed, pr.Unchanged, pr.Failed+pr.Invalid,
				pr.Duration.Round(time.Millisecond))
		}
		tw.Flush()
	}

	events, err := store.GetEvents(ctx, &id, nil, 1000, 0)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Fprintln(w)
		for _, e := range events {
			fmt.Fprintf(w, "%s  %-7s  %s\n", e.Timestamp.Local().Format(time.TimeOnly), e.Level, e.Message)
		}
	}
	return nil
}
