package main

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopdash/dataaccess/config"
	"github.com/shopdash/dataaccess/session"
	"github.com/shopdash/dataaccess/tui"
	"github.com/spf13/cobra"
)

func (a *app) loginCommand() *cobra.Command {
	var (
		accessToken  string
		refreshToken string
		sessionID    string
		expiresIn    string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store a credential pair issued by the sign-in flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if refreshToken == "" {
				var err error
				if a.isTerminal() {
					refreshToken, err = tui.Password("Refresh token", "Paste the refresh token issued at sign in")
				} else {
					refreshToken, err = tui.ReadLine(a.in)
				}
				if err != nil {
					return errors.Wrap(err, "error reading refresh token")
				}
			}
			if refreshToken == "" {
				return errors.New("a refresh token is required")
			}
			info := session.Info{RefreshToken: refreshToken, SessionID: sessionID}
			if expiresIn != "" {
				d, err := config.ParseDuration(expiresIn)
				if err != nil {
					return err
				}
				info.ExpiresIn = d
			}
			ctx := cmd.Context()
			if err := a.client.Login(ctx, accessToken, info); err != nil {
				return err
			}
			if _, ok := a.client.Sessions().AccessToken(ctx); !ok {
				tui.ShowWarning(a.errOut, "Credential store unavailable, the session will not persist")
				return nil
			}
			tui.ShowSuccess(a.out, "Signed in")
			return nil
		},
	}
	cmd.Flags().StringVar(&accessToken, "access-token", "", "access token")
	cmd.Flags().StringVar(&refreshToken, "refresh-token", "", "refresh token, prompted for when omitted")
	cmd.Flags().StringVar(&sessionID, "session-id", "", "session id")
	cmd.Flags().StringVar(&expiresIn, "expires-in", "", "access token lifetime, e.g. 15m")
	_ = cmd.MarkFlagRequired("access-token")
	return cmd
}

func (a *app) logoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.client.Logout(cmd.Context()); err != nil {
				return err
			}
			tui.ShowSuccess(a.out, "Signed out")
			return nil
		},
	}
}

func (a *app) refreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the stored credential pair now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, ok := a.client.Refresh(cmd.Context()); !ok {
				return errors.New("could not refresh the session")
			}
			tui.ShowSuccess(a.out, "Session refreshed")
			return nil
		},
	}
}

func (a *app) sessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info, ok := a.client.Sessions().Info(cmd.Context())
			if !ok {
				tui.ShowWarning(a.out, "Not signed in")
				tui.ShowHint(a.out, "run %s", tui.Command("login"))
				return nil
			}
			lastRefresh := "never"
			if !info.LastRefreshAt.IsZero() {
				lastRefresh = info.LastRefreshAt.Format(time.RFC3339)
			}
			_, err := fmt.Fprintln(a.out, tui.Table([]string{"Field", "Value"}, [][]string{
				{"session", info.SessionID},
				{"refresh token", tui.Mask(info.RefreshToken)},
				{"expires in", info.ExpiresIn.String()},
				{"last refresh", lastRefresh},
			}))
			return err
		},
	}
}
