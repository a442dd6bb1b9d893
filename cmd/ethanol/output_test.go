// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/pkg/errutil"
)

func TestNewPrinter_RejectsUnknownFormat(t *testing.T) {
	_, err := newPrinter(io.Discard, "json")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "INVALID_OUTPUT")
	errutil.AssertErrorContext(t, err, "output", "json")
}

func TestPrinter_Text(t *testing.T) {
	buf := new(bytes.Buffer)
	p, err := newPrinter(buf, formatText)
	require.NoError(t, err)

	require.NoError(t, p.print(struct{}{}, func(w io.Writer) { fmt.Fprint(w, "hello") }))
	assert.Equal(t, "hello", buf.String())
}

func TestPrinter_YAML(t *testing.T) {
	buf := new(bytes.Buffer)
	p, err := newPrinter(buf, formatYAML)
	require.NoError(t, err)

	view := newGroupView(&auth.UserGroup{ID: 3, Name: "editors", Permissions: []string{"news.*"}})
	require.NoError(t, p.print(view, func(io.Writer) { t.Fatal("text renderer called for yaml") }))
	assert.Contains(t, buf.String(), "name: editors\n")

	var decoded groupView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, view, decoded)
}

func TestUserView_Text(t *testing.T) {
	user := &auth.User{
		ID:        7,
		Username:  "alice",
		Email:     "alice@example.com",
		Driver:    auth.DefaultDriverName,
		Activated: true,
		Groups:    []auth.UserGroup{{ID: 1, Name: "admins"}, {ID: 2, Name: "editors"}},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	buf := new(bytes.Buffer)
	newUserView(user).text(buf)
	assert.Equal(t, "7\talice@example.com\talice\t"+auth.DefaultDriverName+"\tactive\tadmins,editors\n", buf.String())
}

func TestAttemptView_TextWithoutDriver(t *testing.T) {
	attempt := auth.NewLoginAttempt("bob@example.com", auth.AttemptNoSuchUser, "")
	buf := new(bytes.Buffer)
	newAttemptView(attempt).text(buf)
	assert.Contains(t, buf.String(), "bob@example.com\tNO_SUCH_USER\t-\n")
}
