// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package directory_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/ethanol/internal/audit"
	"github.com/holomush/ethanol/internal/auth"
)

var _ = Describe("Login attempts on PostgreSQL", func() {
	appendAt := func(email string, status auth.AttemptStatus, at time.Time) {
		attempt := auth.NewLoginAttempt(email, status, auth.DefaultDriverName)
		attempt.Timestamp = at
		Expect(env.Store.Append(env.ctx, attempt)).To(Succeed())
	}

	It("lists newest first and honors the limit", func() {
		base := time.Now().UTC().Truncate(time.Second)
		appendAt("a@example.com", auth.AttemptGood, base.Add(-3*time.Minute))
		appendAt("a@example.com", auth.AttemptBadCredentials, base.Add(-2*time.Minute))
		appendAt("b@example.com", auth.AttemptNoSuchUser, base.Add(-time.Minute))

		all, err := env.Store.ListRecent(env.ctx, "", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(3))
		Expect(all[0].Email).To(Equal("b@example.com"))

		limited, err := env.Store.ListRecent(env.ctx, "a@example.com", 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(limited).To(HaveLen(1))
		Expect(limited[0].Status).To(Equal(auth.AttemptBadCredentials))
		Expect(limited[0].Timestamp).To(BeTemporally("~", base.Add(-2*time.Minute), time.Millisecond))
	})

	It("counts failures inside the window and feeds the throttle", func() {
		now := time.Now().UTC()
		appendAt("c@example.com", auth.AttemptBadCredentials, now.Add(-time.Hour))
		for i := range audit.LockoutThreshold {
			appendAt("c@example.com", auth.AttemptBadCredentials, now.Add(-time.Duration(audit.LockoutThreshold-i)*time.Second))
		}
		appendAt("c@example.com", auth.AttemptGood, now)

		stats, err := env.Store.CountFailures(env.ctx, "c@example.com", now.Add(-10*time.Minute))
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Count).To(Equal(audit.LockoutThreshold))
		Expect(stats.LastFailure).To(BeTemporally("~", now.Add(-time.Second), time.Millisecond))

		result, err := audit.Throttle(env.ctx, env.Store, "c@example.com", 10*time.Minute, now)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.IsLockedOut).To(BeTrue())

		stats, err = env.Store.CountFailures(env.ctx, "nobody@example.com", now.Add(-time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(stats).To(Equal(auth.FailureStats{}))
	})
})
