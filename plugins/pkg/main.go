// Command pkg is the nk plugin for system packages. It installs, removes
// and upgrades the states of the packages declaration with apt, dnf, yum,
// zypper, pacman or Homebrew.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/openfroyo/nk/pkg/runner/protocol"
)

type options struct {
	runner   Runner
	lookPath func(string) (string, error)
	root     bool
	logger   zerolog.Logger
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}).
		With().Timestamp().Str("plugin", "pkg").Logger()

	opts := options{
		runner:   execRunner{},
		lookPath: exec.LookPath,
		root:     os.Geteuid() == 0,
		logger:   logger,
	}
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, opts); err != nil {
		fmt.Fprintf(os.Stderr, "pkg: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, opts options) error {
	if len(args) != 2 || args[0] != protocol.Command {
		return fmt.Errorf("usage: pkg %s <info>", protocol.Command)
	}

	info, err := protocol.DecodeInfo(args[1])
	if err != nil {
		return err
	}
	states, err := protocol.ReadStates(stdin)
	if err != nil {
		return err
	}

	osName, _ := info.Vars["os"].(string)
	enc := protocol.NewEncoder(stdout)
	installers := make(map[string]*installer)

	for _, ds := range states {
		res := provision(ctx, ds, osName, installers, opts)
		out := &protocol.ProvisionStateOutput{
			Status:      protocol.StatusSuccess,
			Changed:     res.Changed,
			Description: res.Description,
			Output:      res.Output,
		}
		if res.Failed {
			out.Status = protocol.StatusFailed
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}

func provision(ctx context.Context, ds protocol.DeclaredState, osName string, installers map[string]*installer, opts options) Result {
	p, err := ParsePackage(ds.State)
	if err != nil {
		return Result{Failed: true, Description: fmt.Sprintf("%s: %v", ds.Declaration, ds.State), Output: err.Error()}
	}

	inst, ok := installers[p.Manager]
	if !ok {
		var m manager
		if p.Manager != "" {
			m, err = lookupManager(p.Manager)
		} else {
			m, err = detectManager(osName, opts.lookPath)
		}
		if err != nil {
			return Result{Failed: true, Description: fmt.Sprintf("%s %s", p.State, p.Name), Output: err.Error()}
		}
		opts.logger.Debug().Str("manager", m.name).Msg("Using package manager")
		inst = &installer{runner: opts.runner, manager: m, root: opts.root}
		installers[p.Manager] = inst
	}

	return inst.Ensure(ctx, p)
}
