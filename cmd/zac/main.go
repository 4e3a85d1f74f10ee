package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"zac/internal/app"
	"zac/internal/clock"
	"zac/internal/config"

	"github.com/spf13/cobra"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

type sourceFlags struct {
	configFile string
	configDir  string
	envFile    string
}

// exitError carries the process exit code out of cobra's RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

// main runs the zac CLI.
// Params: CLI args (provision, probe, version) and config source flags.
// Returns: process exit code by run result.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return app.ExitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			_, _ = fmt.Fprintln(stderr, exit.err.Error())
		}
		return exit.code
	}
	_, _ = fmt.Fprintln(stderr, err.Error())
	return app.ExitConfig
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	flags := &sourceFlags{}
	provision := newRunCommand(flags, app.CommandProvision,
		"Configure alert forwarding, seed demo hosts, and optionally run the probe")

	root := &cobra.Command{
		Use:           "zac",
		Short:         "Zabbix to Alerta configurator",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          provision.RunE,
	}
	root.PersistentFlags().StringVar(&flags.configFile, "config-file", "", "path to one TOML config file")
	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "path to directory with TOML config fragments")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", "", "optional dotenv file with ZAC_* overrides")

	root.AddCommand(
		provision,
		newRunCommand(flags, app.CommandProbe, "Run only the end-to-end trigger probe"),
		&cobra.Command{
			Use:   "version",
			Short: "Print the zac version",
			Args:  cobra.NoArgs,
			Run: func(*cobra.Command, []string) {
				_, _ = fmt.Fprintln(stdout, version)
			},
		},
	)
	return root
}

func newRunCommand(flags *sourceFlags, command, short string) *cobra.Command {
	return &cobra.Command{
		Use:   command,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			source, err := config.FromCLI(flags.configFile, flags.configDir, flags.envFile)
			if err != nil {
				return &exitError{code: app.ExitConfig, err: err}
			}
			runner, err := app.NewRunner(source, clock.RealClock{})
			if err != nil {
				return &exitError{code: app.ExitConfig, err: fmt.Errorf("init failed: %w", err)}
			}
			defer runner.Close()

			run := runner.Run(cmd.Context(), command)
			if run.ExitCode != app.ExitOK {
				exit := &exitError{code: run.ExitCode}
				if run.Error != "" {
					exit.err = errors.New(run.Error)
				}
				return exit
			}
			return nil
		},
	}
}
