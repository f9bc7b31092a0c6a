package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/app"
	autherrors "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func (c *cli) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "GET a protected API path with the session's access token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			body, err := a.API.Raw(cmd.Context(), args[0])
			if autherrors.Is(err, autherrors.ErrUnauthorized) {
				return autherrors.Normalize("get", err)
			}
			if err != nil {
				return err
			}

			var pretty bytes.Buffer
			if json.Indent(&pretty, body, "", "  ") != nil {
				pretty.Reset()
				pretty.Write(body)
			}
			fmt.Fprintln(c.out, pretty.String())
			return nil
		},
	}
}

func (c *cli) newServeDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve-demo",
		Short: "Run the demo resource API on PORT",
		Long: `Run the bearer-protected demo API. It verifies tokens with TOKEN_SECRET,
so a direct-provider client configured with the same secret can call it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := app.LoadCredentials(c.cfg)
			if err != nil {
				return err
			}
			api := server.New(app.NewMinter(c.cfg), table,
				server.WithEnv(c.cfg.GetEnv()),
				server.WithScheme(c.cfg.GetAuthScheme()),
			)

			displayAppname(c.out, c.cfg.GetAppName())
			srv := &http.Server{Addr: c.cfg.GetPort(), Handler: api, ReadHeaderTimeout: 10 * time.Second}

			errs := make(chan error, 1)
			go func() { errs <- listenAndServe(srv) }()

			select {
			case err := <-errs:
				return err
			case <-cmd.Context().Done():
			}
			return shutdown(srv)
		},
	}
}

func listenAndServe(srv *http.Server) error {
	log.Info().Str("addr", srv.Addr).Msg("demo API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	log.Info().Msg("demo API stopped")
	return nil
}

func (c *cli) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print the version",
		Annotations: map[string]string{skipConfig: "true"},
		Run: func(cmd *cobra.Command, _ []string) {
			displayAppname(c.out, "authctl")
			fmt.Fprintf(c.out, "authctl %s\n", version)
		},
	}
}
