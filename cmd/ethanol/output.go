// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/holomush/ethanol/internal/auth"
)

const (
	formatText = "text"
	formatYAML = "yaml"
)

// printer renders command results as text or YAML.
type printer struct {
	w      io.Writer
	format string
}

func newPrinter(w io.Writer, format string) (printer, error) {
	switch format {
	case formatText, formatYAML:
		return printer{w: w, format: format}, nil
	default:
		return printer{}, oops.Code("INVALID_OUTPUT").
			With("output", format).
			Errorf("unknown output format %q: must be 'text' or 'yaml'", format)
	}
}

// print writes v as YAML, or calls text for the text format.
func (p printer) print(v any, text func(w io.Writer)) error {
	if p.format == formatYAML {
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return oops.With("operation", "encode yaml").Wrap(err)
		}
		return enc.Close()
	}
	text(p.w)
	return nil
}

type userView struct {
	ID          int64     `yaml:"id"`
	Username    string    `yaml:"username"`
	Email       string    `yaml:"email"`
	DisplayName string    `yaml:"display_name,omitempty"`
	Driver      string    `yaml:"driver"`
	Activated   bool      `yaml:"activated"`
	Pending     bool      `yaml:"pending_activation"`
	Groups      []string  `yaml:"groups"`
	CreatedAt   time.Time `yaml:"created_at"`
}

func newUserView(u *auth.User) userView {
	return userView{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.Meta.DisplayName,
		Driver:      u.Driver,
		Activated:   u.Activated,
		Pending:     u.PendingActivation(),
		Groups:      u.GroupNames(),
		CreatedAt:   u.CreatedAt,
	}
}

func (v userView) text(w io.Writer) {
	status := "active"
	if v.Pending {
		status = "pending activation"
	}
	groups := "-"
	if len(v.Groups) > 0 {
		groups = strings.Join(v.Groups, ",")
	}
	fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", v.ID, v.Email, v.Username, v.Driver, status, groups)
}

type groupView struct {
	ID          int64    `yaml:"id"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

func newGroupView(g *auth.UserGroup) groupView {
	return groupView{ID: g.ID, Name: g.Name, Permissions: g.Permissions}
}

func (v groupView) text(w io.Writer) {
	perms := "-"
	if len(v.Permissions) > 0 {
		perms = strings.Join(v.Permissions, ",")
	}
	fmt.Fprintf(w, "%d\t%s\t%s\n", v.ID, v.Name, perms)
}

type attemptView struct {
	ID        string    `yaml:"id"`
	Email     string    `yaml:"email"`
	Status    string    `yaml:"status"`
	Driver    string    `yaml:"driver,omitempty"`
	Timestamp time.Time `yaml:"timestamp"`
}

func newAttemptView(a auth.LoginAttempt) attemptView {
	return attemptView{
		ID:        a.ID.String(),
		Email:     a.Email,
		Status:    string(a.Status),
		Driver:    a.Driver,
		Timestamp: a.Timestamp,
	}
}

func (v attemptView) text(w io.Writer) {
	driver := v.Driver
	if driver == "" {
		driver = "-"
	}
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", v.Timestamp.Format(time.RFC3339), v.Email, v.Status, driver)
}
