package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-client/internal/app"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// skipConfig marks commands that run without loading the environment.
const skipConfig = "skip-config"

type cli struct {
	out     io.Writer
	in      io.Reader
	envFile string
	cfg     *config.Settings
}

func newRootCmd(out io.Writer, in io.Reader) *cobra.Command {
	c := &cli{out: out, in: in}

	root := &cobra.Command{
		Use:   "authctl",
		Short: "Sign in, inspect and use an authenticated session",
		Long: `authctl drives the auth client from the command line. The provider is
chosen by AUTH_PROVIDER (direct, interactive or unimplemented); the session is
persisted in the configured credential store and survives between runs.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.loadConfig,
	}
	root.SetOut(out)
	root.SetIn(in)
	root.PersistentFlags().StringVar(&c.envFile, "env-file", "", "dotenv file to load (default .env if present)")

	root.AddCommand(
		c.newLoginCmd(),
		c.newLogoutCmd(),
		c.newStatusCmd(),
		c.newRefreshCmd(),
		c.newGetCmd(),
		c.newServeDemoCmd(),
		c.newVersionCmd(),
	)
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[skipConfig] == "true" {
		return nil
	}
	var files []string
	if c.envFile != "" {
		files = append(files, c.envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return err
	}
	c.cfg = cfg
	configureLogging(cfg.GetLogLevel())
	return nil
}

// openApp builds the client and restores any persisted session.
func (c *cli) openApp(cmd *cobra.Command) (*app.App, error) {
	a, err := app.New(cmd.Context(), c.cfg)
	if err != nil {
		return nil, err
	}
	a.Machine.Initialize(cmd.Context())
	return a, nil
}

func configureLogging(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}

func displayAppname(out io.Writer, appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	fmt.Fprintln(out, myFigure.String())
}
