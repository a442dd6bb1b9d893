// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build tools
// +build tools

// Package main pins command line tools used by the integration suite to
// go.mod. Run them with "go run", e.g. go run github.com/onsi/ginkgo/v2/ginkgo
// -tags integration ./test/integration/...
package main

import (
	_ "github.com/onsi/ginkgo/v2/ginkgo"
)
