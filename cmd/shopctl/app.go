package main

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/shopdash/dataaccess/api"
	"github.com/shopdash/dataaccess/config"
	"github.com/shopdash/dataaccess/logger"
	"github.com/shopdash/dataaccess/session"
	"github.com/shopdash/dataaccess/shopdash"
	"github.com/shopdash/dataaccess/telemetry"
	"github.com/shopdash/dataaccess/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	configPath  string
	envFile     string
	apiURL      string
	noTelemetry bool

	isTerminal func() bool
	client     *shopdash.Client
	shutdown   telemetry.ShutdownFunc
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		in:     in,
		out:    out,
		errOut: errOut,
		isTerminal: func() bool {
			return in == os.Stdin && term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "shopctl",
		Short:         "Talk to the Shopdash backend through the shared data-access layer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd)
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "shopdash.yaml", "path to the YAML config file")
	flags.StringVar(&a.envFile, "env-file", ".env", "path to a dotenv file")
	flags.StringVar(&a.apiURL, "api-url", "", "override the backend base URL")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.BoolVar(&a.noTelemetry, "no-telemetry", false, "disable OTLP export")

	for _, method := range []string{"GET", "POST", "PUT", "PATCH", "DELETE"} {
		root.AddCommand(a.requestCommand(method))
	}
	root.AddCommand(a.loginCommand(), a.logoutCommand(), a.refreshCommand(), a.sessionCommand())
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath, a.envFile)
	if err != nil {
		return err
	}
	if a.apiURL != "" {
		cfg.APIURL = a.apiURL
	}
	level := logger.ParseLevel(config.FlagOrEnv(cmd, "log-level", logger.LevelEnv, cfg.LogLevel), logger.LevelInfo)
	log := logger.NewWriterLogger(a.errOut, level)

	ctx := cmd.Context()
	tcfg := telemetry.Config{ServiceName: "shopctl", Level: level}
	if !a.noTelemetry {
		tcfg.Endpoint = cfg.Telemetry.Endpoint
		tcfg.Token = cfg.Telemetry.Token
	}
	tel, err := telemetry.New(ctx, tcfg, log)
	if err != nil {
		return errors.Wrap(err, "error creating telemetry")
	}
	a.shutdown = tel.Shutdown

	a.client, err = shopdash.New(ctx, cfg,
		shopdash.WithLogger(tel.Logger),
		shopdash.WithTracerProvider(tel.TracerProvider),
		shopdash.WithRedirector(session.RedirectFunc(func(context.Context, string) {
			tui.ShowWarning(a.errOut, "Your session has ended")
			tui.ShowHint(a.errOut, "sign in again with %s", tui.Command("login"))
		})),
	)
	return err
}

// interactive reports whether output goes to a terminal the user watches.
func (a *app) interactive() bool {
	return a.out == os.Stdout && tui.HasTTY
}

func (a *app) close() {
	if a.client != nil {
		_ = a.client.Close()
		a.client = nil
	}
	if a.shutdown != nil {
		a.shutdown()
		a.shutdown = nil
	}
}

func renderError(w io.Writer, err error) {
	var apiErr *api.Error
	if !errors.As(err, &apiErr) {
		tui.ShowError(w, "%s", err)
		return
	}
	tui.ShowError(w, "%s", apiErr.Error())
	switch {
	case apiErr.SessionEnded():
		tui.ShowHint(w, "sign in again with %s", tui.Command("login"))
	case apiErr.Retryable():
		tui.ShowHint(w, "this request can be retried")
	}
}
