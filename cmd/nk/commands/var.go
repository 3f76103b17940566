package commands

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/openfroyo/nk/pkg/config"
	"github.com/openfroyo/nk/pkg/vars"
)

func newVarCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "var",
		Short: "Manage global variables",
		Long: `Global variables are stored in globals.yml in the nk home directory
(~/.nk, or $NK_HOME) and override builtin variables of the same name.`,
	}

	cmd.AddCommand(newVarSetCommand())
	cmd.AddCommand(newVarListCommand())

	return cmd
}

func newVarSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set a global variable",
		Long:  `Set stores a global variable. The value is parsed as YAML.`,
		Example: `  # Name this machine
  nk var set machine laptop

  # Assign roles
  nk var set roles '[desktop, dev]'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := vars.ParseValue(args[1])
			if err != nil {
				return err
			}

			path, err := config.GlobalsPath()
			if err != nil {
				return err
			}
			globals, err := vars.LoadGlobals(path)
			if err != nil {
				return err
			}
			globals.Set(args[0], value)
			return globals.Save(path)
		},
	}
}

func newVarListCommand() *cobra.Command {
	var globalsOnly bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the variables conditions can read",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.GlobalsPath()
			if err != nil {
				return err
			}

			var out map[string]any
			if globalsOnly {
				globals, err := vars.LoadGlobals(path)
				if err != nil {
					return err
				}
				out = globals.Vars
			} else if out, err = vars.Load(vars.NewDetector(), path); err != nil {
				return err
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.Flags().BoolVar(&globalsOnly, "globals", false, "only print global variables")

	return cmd
}
