package commands

import (
	"context"
	_ "embed"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/engine"
	"github.com/openfroyo/nk/pkg/plugins"
)

//go:embed helpers/bash.sh
var bashHelper string

func newPluginCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Develop, package and inspect plugins",
	}

	cmd.AddCommand(newPluginLinkCommand())
	cmd.AddCommand(newPluginPackCommand())
	cmd.AddCommand(newPluginListCommand())
	cmd.AddCommand(newPluginHelperCommand())

	return cmd
}

func newPluginLinkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "link <plugin.yml>...",
		Short: "Use local plugin directories in place of released plugins",
		Long: `Link symlinks each plugin directory into the plugins directory under
the plugin's name. A linked plugin is never replaced by a download.`,
		Example: `  nk plugin link ./plugins/pkg/plugin.yml`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.PluginsDir()
			if err != nil {
				return err
			}
			for _, path := range args {
				target, err := plugins.Link(path, dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "linked %s\n", target)
			}
			return nil
		},
	}
}

func newPluginPackCommand() *cobra.Command {
	var opts plugins.PackOptions

	cmd := &cobra.Command{
		Use:   "pack <plugin.yml>...",
		Short: "Archive plugins for a GitHub release",
		Long: `Pack writes one .tar.gz archive per plugin definition and the
manifest.yml describing them. Archives are named after the plugin and the
platform its when rules select, such as pkg-macos-aarch64.tar.gz.`,
		Example: `  nk plugin pack --owner me --repo nk-plugins --version v1.0.0 \
    --output dist build/*/plugin.yml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Definitions = args
			m, err := plugins.Pack(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, p := range m.Plugins {
				for _, a := range p.Assets {
					fmt.Fprintf(out, "%s/%s\n", opts.Output, a.File)
				}
			}
			fmt.Fprintf(out, "%s/manifest.yml\n", opts.Output)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "GitHub owner of the release")
	cmd.Flags().StringVar(&opts.Repo, "repo", "", "GitHub repository of the release")
	cmd.Flags().StringVar(&opts.Version, "version", "", "release tag")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "dist", "output directory")
	_ = cmd.MarkFlagRequired("owner")
	_ = cmd.MarkFlagRequired("repo")
	_ = cmd.MarkFlagRequired("version")

	return cmd
}

func newPluginListCommand() *cobra.Command {
	var (
		installed bool
		offline   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the configured plugins",
		Long: `List prints the plugins of the configuration that apply to this
machine, in priority order. With --installed it prints the content of the
plugins directory instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			defer tw.Flush()

			if installed {
				dir, err := config.PluginsDir()
				if err != nil {
					return err
				}
				items, err := plugins.List(dir)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "NAME\tVERSION\tPATH")
				for _, item := range items {
					version := item.Version
					if item.Linked {
						version = "linked"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\n", item.Name, orDash(version), item.Path)
				}
				return nil
			}

			ctx := cmd.Context()
			env, err := loadEnvironment(ctx, envOptions{offline: offline})
			if err != nil {
				return err
			}
			defer env.Close(context.WithoutCancel(ctx))

			reg, err := env.pipeline(engine.NopReporter{}, nil).Plugins(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "NAME\tVERSION\tSOURCE\tPATH")
			for _, p := range reg.Plugins() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name(), orDash(p.Version), p.Source.Raw, p.Path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&installed, "installed", false, "list the plugins directory")
	cmd.Flags().BoolVar(&offline, "offline", false, "use installed plugins without checking for releases")

	return cmd
}

func newPluginHelperCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "helper <language>",
		Short:     "Print utilities for writing plugins",
		Example:   `  source <(nk plugin helper bash)`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"bash"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				fmt.Fprint(cmd.OutOrStdout(), bashHelper)
				return nil
			default:
				return fmt.Errorf("no helper for %q (available: bash)", args[0])
			}
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
