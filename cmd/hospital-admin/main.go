package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/hospital-admin/internal/config"
	"github.com/ehr/hospital-admin/internal/domain/lifecycle"
	"github.com/ehr/hospital-admin/internal/domain/transition"
	"github.com/ehr/hospital-admin/internal/platform/remote"
)

// sandboxIssuer is shared by `sandbox serve` and `token mint`.
const sandboxIssuer = "hospital-admin-sandbox"

type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	cfg    *config.Config
	role   lifecycle.Role
	logger zerolog.Logger
}

func main() {
	a := &app{in: os.Stdin, out: os.Stdout, errOut: os.Stderr}
	if err := run(a, os.Args[1:]); err != nil {
		os.Exit(1)
	}
}

// run executes one command line. Errors are reported once, in the actor's
// terms.
func run(a *app, args []string) error {
	rootCmd := newRootCmd(a)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return a.fail(err)
	}
	return nil
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "hospital-admin",
		Short:         "Appointment and invoice lifecycle client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	rootCmd.SetIn(a.in)
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.errOut)
	rootCmd.PersistentFlags().String("role", "", "Acting role (overrides ACTOR_ROLE)")

	rootCmd.AddCommand(actionsCmd(a))
	rootCmd.AddCommand(appointmentCmd(a))
	rootCmd.AddCommand(invoiceCmd(a))
	rootCmd.AddCommand(sandboxCmd(a))
	rootCmd.AddCommand(tokenCmd(a))
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if r, _ := cmd.Flags().GetString("role"); r != "" {
		cfg.ActorRole = r
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg
	a.role, _ = cfg.Role()

	level, _ := cfg.Level()
	logger := zerolog.New(a.errOut).With().Timestamp().Logger()
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: a.errOut}).With().Timestamp().Logger()
	}
	a.logger = logger.Level(level)
	return nil
}

// executor opens a session against SERVICE_URL. The returned cache holds the
// detail views shown by this invocation.
func (a *app) executor() (*transition.Executor, *transition.ViewCache[transition.Entity], *remote.Client, error) {
	client, err := remote.New(a.cfg.ServiceURL,
		remote.WithToken(a.cfg.ActorToken),
		remote.WithTimeout(a.cfg.RequestTimeout),
		remote.WithLogger(a.logger),
	)
	if err != nil {
		return nil, nil, nil, err
	}
	views, err := transition.NewViewCache[transition.Entity](a.cfg.ViewCacheSize)
	if err != nil {
		return nil, nil, nil, err
	}
	x := transition.NewExecutor(client,
		transition.WithViews(views),
		transition.WithLogger(a.logger),
	)
	return x, views, client, nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// fail prints the actor-facing message for err and returns it.
func (a *app) fail(err error) error {
	var le *lifecycle.Error
	if errors.As(err, &le) {
		fmt.Fprintf(a.errOut, "error: %s\n", lifecycle.UserMessage(err))
		for _, f := range le.Fields {
			fmt.Fprintf(a.errOut, "  %s: %s\n", f.Field, f.Message)
		}
		return err
	}
	fmt.Fprintf(a.errOut, "error: %v\n", err)
	return err
}
