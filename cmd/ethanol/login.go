// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/internal/session"
)

type sessionView struct {
	Token string    `yaml:"token"`
	User  *userView `yaml:"user,omitempty"`
}

// withSession opens the session named by token, runs fn with the facade for
// driver and commits the session afterwards.
func withSession(cmd *cobra.Command, opts *rootOptions, driver, token string,
	fn func(ctx context.Context, a *app, svc *auth.Service, sess session.Handle) (*auth.User, error),
) error {
	return withApp(cmd, opts, func(ctx context.Context, a *app) error {
		svc, err := a.facade(driver)
		if err != nil {
			return err
		}
		opener, err := a.sessions(ctx)
		if err != nil {
			return err
		}
		sess, err := opener.Open(ctx, token)
		if err != nil {
			return err
		}
		user, err := fn(ctx, a, svc, sess)
		if err != nil {
			return err
		}
		next, err := sess.Commit(ctx)
		if err != nil {
			return err
		}

		view := sessionView{Token: next}
		if user != nil && !user.IsGuest() {
			uv := newUserView(user)
			view.User = &uv
		}
		return a.out.print(view, func(w io.Writer) {
			if view.User != nil {
				view.User.text(w)
			} else {
				fmt.Fprintln(w, "guest")
			}
			fmt.Fprintf(w, "token: %s\n", view.Token)
		})
	})
}

func newLoginCmd(opts *rootOptions) *cobra.Command {
	var (
		password string
		driver   string
		token    string
	)
	cmd := &cobra.Command{
		Use:   "login EMAIL",
		Short: "Check credentials and open a session",
		Long: `Check credentials against the selected auth driver. On success the
user is stored in the session and the session token is printed; pass it to
whoami or logout with --token.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, driver, token,
				func(ctx context.Context, _ *app, svc *auth.Service, sess session.Handle) (*auth.User, error) {
					return svc.LogIn(ctx, sess, args[0], auth.Credentials{Secret: password})
				})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password or driver secret")
	cmd.Flags().StringVar(&driver, "driver", "", "auth driver (default: configured default)")
	cmd.Flags().StringVar(&token, "token", "", "existing session token to reuse")
	return cmd
}

func newWhoamiCmd(opts *rootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the user held by a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, "", token,
				func(ctx context.Context, _ *app, svc *auth.Service, sess session.Handle) (*auth.User, error) {
					return svc.CurrentUser(ctx, sess)
				})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token")
	return cmd
}

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Clear the user from a session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, "", token,
				func(ctx context.Context, _ *app, svc *auth.Service, sess session.Handle) (*auth.User, error) {
					return nil, svc.LogOut(ctx, sess)
				})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token")
	return cmd
}

func newPasswdCmd(opts *rootOptions) *cobra.Command {
	var (
		token   string
		current string
		next    string
	)
	cmd := &cobra.Command{
		Use:   "passwd",
		Short: "Change the password of the session user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withSession(cmd, opts, "", token,
				func(ctx context.Context, _ *app, svc *auth.Service, sess session.Handle) (*auth.User, error) {
					user, err := svc.CurrentUser(ctx, sess)
					if err != nil {
						return nil, err
					}
					if user.IsGuest() {
						return nil, oops.Code("NOT_LOGGED_IN").Errorf("session holds no user")
					}
					if err := svc.ChangePassword(ctx, user, auth.Credentials{Secret: current}, auth.Credentials{Secret: next}); err != nil {
						return nil, err
					}
					return user, nil
				})
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token")
	cmd.Flags().StringVar(&current, "current", "", "current password")
	cmd.Flags().StringVar(&next, "new", "", "new password")
	return cmd
}
