package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// completionTarget is a well-known location shells load completions from.
type completionTarget struct {
	shell string
	path  string
}

var completionTargets = []completionTarget{
	{"bash", "/usr/local/share/bash-completion/completions/nk"},
	{"bash", "/opt/homebrew/share/bash-completion/completions/nk"},
	{"zsh", "/usr/local/share/zsh/site-functions/_nk"},
	{"zsh", "/opt/homebrew/share/zsh/site-functions/_nk"},
}

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "completion <shell>",
		Short:     "Generate shell completions",
		Long:      `Completion prints the completion script of a shell, or installs the bash and zsh scripts into the usual system locations.`,
		Example:   "  nk completion install\n  nk completion fish > ~/.config/fish/completions/nk.fish",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			out := cmd.OutOrStdout()
			switch args[0] {
			case "install":
				n, err := installCompletions(root, completionTargets)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "installed %d completion %s\n", n, plural(n, "script", "scripts"))
				return nil
			default:
				script, err := completionScript(root, args[0])
				if err != nil {
					return err
				}
				_, err = out.Write(script)
				return err
			}
		},
	}

	return cmd
}

func completionScript(root *cobra.Command, shell string) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch shell {
	case "bash":
		err = root.GenBashCompletionV2(&buf, true)
	case "zsh":
		err = root.GenZshCompletion(&buf)
	case "fish":
		err = root.GenFishCompletion(&buf, true)
	case "powershell":
		err = root.GenPowerShellCompletionWithDesc(&buf)
	default:
		return nil, fmt.Errorf("unsupported shell %q", shell)
	}
	return buf.Bytes(), err
}

// installCompletions writes each target whose directory exists and is
// writable, and returns how many were written.
func installCompletions(root *cobra.Command, targets []completionTarget) (int, error) {
	n := 0
	for _, t := range targets {
		if _, err := os.Stat(filepath.Dir(t.path)); err != nil {
			log.Debug().Str("path", t.path).Msg("Skipping completion, directory does not exist")
			continue
		}

		script, err := completionScript(root, t.shell)
		if err != nil {
			return n, err
		}

		err = os.WriteFile(t.path, script, 0o644)
		if errors.Is(err, fs.ErrPermission) {
			log.Debug().Str("path", t.path).Msg("Skipping completion, directory is read-only")
			continue
		}
		if err != nil {
			return n, fmt.Errorf("failed to install %s completion: %w", t.shell, err)
		}
		log.Info().Str("shell", t.shell).Str("path", t.path).Msg("Installed completion")
		n++
	}
	return n, nil
}
