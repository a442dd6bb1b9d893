// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/holomush/ethanol/internal/auth"
)

func newUserCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage directory users",
	}
	cmd.AddCommand(newUserCreateCmd(opts))
	cmd.AddCommand(newUserListCmd(opts))
	cmd.AddCommand(newUserShowCmd(opts))
	cmd.AddCommand(newUserGroupsCmd(opts))
	cmd.AddCommand(newUserActivateCmd(opts))
	return cmd
}

func newUserCreateCmd(opts *rootOptions) *cobra.Command {
	var (
		password    string
		username    string
		displayName string
		driver      string
	)
	cmd := &cobra.Command{
		Use:   "create EMAIL",
		Short: "Provision a user through an auth driver",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				svc, err := a.facade(driver)
				if err != nil {
					return err
				}
				user, err := svc.CreateUser(ctx, args[0], auth.NewUser{
					Username: username,
					Password: password,
					Meta:     auth.UserMeta{DisplayName: displayName},
				})
				if err != nil {
					return err
				}
				view := newUserView(user)
				return a.out.print(view, func(w io.Writer) {
					view.text(w)
					if user.PendingActivation() {
						fmt.Fprintf(w, "activation key: %s\n", user.ActivationKey)
					}
				})
			})
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&username, "username", "", "username (default: local part of the email)")
	cmd.Flags().StringVar(&displayName, "display-name", "", "display name")
	cmd.Flags().StringVar(&driver, "driver", "", "auth driver to provision through (default: configured default)")
	return cmd
}

func newUserListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				users, err := a.dir.GetUsers(ctx)
				if errors.Is(err, auth.ErrNoUsers) {
					users = nil
				} else if err != nil {
					return err
				}
				views := make([]userView, 0, len(users))
				for _, u := range users {
					views = append(views, newUserView(u))
				}
				return a.out.print(views, func(w io.Writer) {
					if len(views) == 0 {
						fmt.Fprintln(w, "no users")
						return
					}
					for _, v := range views {
						v.text(w)
					}
				})
			})
		},
	}
}

func newUserShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show EMAIL|ID",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				user, err := a.lookupUser(ctx, args[0])
				if err != nil {
					return err
				}
				view := newUserView(user)
				return a.out.print(view, view.text)
			})
		},
	}
}

func newUserGroupsCmd(opts *rootOptions) *cobra.Command {
	var set []string
	cmd := &cobra.Command{
		Use:   "groups EMAIL|ID",
		Short: "Show or replace a user's groups",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				user, err := a.lookupUser(ctx, args[0])
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("set") {
					ids := make([]int64, 0, len(set))
					for _, ref := range set {
						group, err := a.lookupGroup(ctx, ref)
						if err != nil {
							return err
						}
						ids = append(ids, group.ID)
					}
					if user, err = a.dir.SetUserGroupsByID(ctx, user.ID, ids); err != nil {
						return err
					}
				}
				views := make([]groupView, 0, len(user.Groups))
				for i := range user.Groups {
					views = append(views, newGroupView(&user.Groups[i]))
				}
				return a.out.print(views, func(w io.Writer) {
					for _, v := range views {
						v.text(w)
					}
				})
			})
		},
	}
	cmd.Flags().StringSliceVar(&set, "set", nil, "replace memberships with these group names or IDs")
	return cmd
}

func newUserActivateCmd(opts *rootOptions) *cobra.Command {
	var driver string
	cmd := &cobra.Command{
		Use:   "activate EMAIL KEY",
		Short: "Activate a pending user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				svc, err := a.facade(driver)
				if err != nil {
					return err
				}
				ok, err := svc.Activate(ctx, auth.Activation{Email: args[0], Key: args[1]})
				if err != nil {
					return err
				}
				result := struct {
					Email     string `yaml:"email"`
					Activated bool   `yaml:"activated"`
				}{args[0], ok}
				return a.out.print(result, func(w io.Writer) {
					if ok {
						fmt.Fprintf(w, "%s activated\n", args[0])
						return
					}
					fmt.Fprintf(w, "%s was not activated\n", args[0])
				})
			})
		},
	}
	cmd.Flags().StringVar(&driver, "driver", "", "auth driver (default: configured default)")
	return cmd
}

// lookupUser resolves a numeric ID or an email address.
func (a *app) lookupUser(ctx context.Context, ref string) (*auth.User, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return a.dir.GetUser(ctx, id)
	}
	return a.dir.GetUserByEmail(ctx, ref)
}

// lookupGroup resolves a numeric ID or a group name.
func (a *app) lookupGroup(ctx context.Context, ref string) (*auth.UserGroup, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return a.dir.GetGroup(ctx, id)
	}
	return a.dir.GetGroupByName(ctx, ref)
}
