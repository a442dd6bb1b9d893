// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newGroupCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Manage groups and their permissions",
	}
	cmd.AddCommand(newGroupAddCmd(opts))
	cmd.AddCommand(newGroupListCmd(opts))
	cmd.AddCommand(newGroupRenameCmd(opts))
	cmd.AddCommand(newGroupDeleteCmd(opts))
	cmd.AddCommand(newGroupGrantCmd(opts))
	return cmd
}

func newGroupAddCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add NAME",
		Short: "Create a group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				group, err := a.dir.AddGroup(ctx, args[0])
				if err != nil {
					return err
				}
				view := newGroupView(group)
				return a.out.print(view, view.text)
			})
		},
	}
}

func newGroupListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List groups",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				groups, err := a.dir.GroupList(ctx)
				if err != nil {
					return err
				}
				views := make([]groupView, 0, len(groups))
				for _, g := range groups {
					views = append(views, newGroupView(g))
				}
				return a.out.print(views, func(w io.Writer) {
					for _, v := range views {
						v.text(w)
					}
				})
			})
		},
	}
}

func newGroupRenameCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rename ID|NAME NEW_NAME",
		Short: "Rename a group",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				group, err := a.lookupGroup(ctx, args[0])
				if err != nil {
					return err
				}
				svc, err := a.facade("")
				if err != nil {
					return err
				}
				group, err = svc.UpdateGroup(ctx, group.ID, args[1])
				if err != nil {
					return err
				}
				view := newGroupView(group)
				return a.out.print(view, view.text)
			})
		},
	}
}

func newGroupDeleteCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID|NAME",
		Short: "Delete a group and its memberships",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				group, err := a.lookupGroup(ctx, args[0])
				if err != nil {
					return err
				}
				if err := a.dir.DeleteGroup(ctx, group.ID); err != nil {
					return err
				}
				view := newGroupView(group)
				return a.out.print(view, func(w io.Writer) {
					fmt.Fprintf(w, "deleted group %d (%s)\n", view.ID, view.Name)
				})
			})
		},
	}
}

func newGroupGrantCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "grant ID|NAME [PATTERN...]",
		Short: "Replace a group's permission patterns",
		Long: `Replace the permission patterns of a group. Patterns are globs, so
"news.*" grants "news.edit" and "news.delete". Passing no patterns clears
the group's permissions.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				group, err := a.lookupGroup(ctx, args[0])
				if err != nil {
					return err
				}
				svc, err := a.facade("")
				if err != nil {
					return err
				}
				group, err = svc.SetGroupPermissions(ctx, group.ID, args[1:])
				if err != nil {
					return err
				}
				view := newGroupView(group)
				return a.out.print(view, view.text)
			})
		},
	}
}
