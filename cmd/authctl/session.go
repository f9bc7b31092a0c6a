package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jrsteele09/go-auth-client/authstate"
	"github.com/jrsteele09/go-auth-client/provider"
	"github.com/spf13/cobra"
)

func (c *cli) newLoginCmd() *cobra.Command {
	var creds provider.Credentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with the configured provider",
		Long: `Sign in and persist the session.

The direct provider takes a username and password; a missing password is read
from stdin. The interactive provider opens the identity provider's login page
and waits for the redirect.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			state := a.Machine.State()
			if state.IsAuthenticated() {
				fmt.Fprintf(c.out, "Already signed in as %s\n", state.User.Email)
				return nil
			}
			if state.Capabilities.HasCredentialLogin {
				if err := c.completeCredentials(&creds); err != nil {
					return err
				}
			}

			if err := a.Machine.SignIn(cmd.Context(), creds); err != nil {
				return err
			}
			state = a.Machine.State()
			fmt.Fprintf(c.out, "Signed in as %s\n", state.User.Email)
			if state.Warning != "" {
				fmt.Fprintf(c.out, "Warning: %s\n", state.Warning)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&creds.Username, "username", "u", "", "username (direct provider)")
	cmd.Flags().StringVarP(&creds.Password, "password", "p", "", "password (direct provider); read from stdin when omitted")
	return cmd
}

func (c *cli) completeCredentials(creds *provider.Credentials) error {
	reader := bufio.NewReader(c.in)
	if creds.Username == "" {
		fmt.Fprint(c.out, "Username: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read username: %w", err)
		}
		creds.Username = strings.TrimSpace(line)
	}
	if creds.Password == "" {
		fmt.Fprint(c.out, "Password: ")
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		creds.Password = strings.TrimRight(line, "\r\n")
	}
	return nil
}

func (c *cli) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the persisted session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			err = a.Machine.SignOut(cmd.Context())
			fmt.Fprintln(c.out, "Signed out")
			return err
		},
	}
}

type statusReport struct {
	Status       string                `json:"status"`
	Provider     provider.ID           `json:"provider"`
	Capabilities provider.Capabilities `json:"capabilities"`
	UserID       string                `json:"userId,omitempty"`
	Email        string                `json:"email,omitempty"`
	Roles        []string              `json:"roles,omitempty"`
	Error        string                `json:"error,omitempty"`
	Warning      string                `json:"warning,omitempty"`
}

func newStatusReport(s authstate.State) statusReport {
	r := statusReport{
		Status:       s.Status.String(),
		Provider:     s.Provider,
		Capabilities: s.Capabilities,
		Error:        s.Error,
		Warning:      s.Warning,
	}
	if s.User != nil {
		r.UserID = s.User.ID
		r.Email = s.User.Email
		r.Roles = s.User.Roles.List()
	}
	return r
}

func (c *cli) newStatusCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current authentication state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			report := newStatusReport(a.Machine.State())
			if asJSON {
				enc := json.NewEncoder(c.out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(c.out, "Status:   %s\n", report.Status)
			fmt.Fprintf(c.out, "Provider: %s\n", report.Provider)
			if report.Email != "" {
				fmt.Fprintf(c.out, "User:     %s (%s)\n", report.Email, report.UserID)
				fmt.Fprintf(c.out, "Roles:    %s\n", strings.Join(report.Roles, ", "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")
	return cmd
}

func (c *cli) newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the access token now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Machine.RefreshToken(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Token refreshed")
			return nil
		},
	}
}
