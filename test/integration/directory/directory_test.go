// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package directory_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/ethanol/internal/audit"
	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/internal/auth/authtest"
)

var _ = Describe("Directory on PostgreSQL", func() {
	Describe("users", func() {
		It("round-trips a user with metadata", func() {
			user := &auth.User{
				Username:  "alice",
				Email:     "alice@example.com",
				Password:  "digest",
				Salt:      "salt",
				Activated: true,
				Driver:    auth.DefaultDriverName,
				Meta: auth.UserMeta{
					DisplayName: "Alice",
					Attributes:  map[string]string{"locale": "en"},
				},
			}
			Expect(env.Store.CreateUser(env.ctx, user)).To(Succeed())
			Expect(user.ID).To(BeNumerically(">", 0))
			Expect(user.CreatedAt).NotTo(BeZero())

			got, err := env.Directory.GetUserByEmail(env.ctx, "ALICE@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ID).To(Equal(user.ID))
			Expect(got.Meta.DisplayName).To(Equal("Alice"))
			Expect(got.Meta.Attributes).To(HaveKeyWithValue("locale", "en"))
			Expect(got.Groups).To(BeEmpty())
		})

		It("rejects duplicate emails", func() {
			createUser("bob@example.com")
			dup := &auth.User{Username: "bob2", Email: "bob@example.com", Driver: auth.DefaultDriverName}
			err := env.Store.CreateUser(env.ctx, dup)
			Expect(err).To(MatchError(auth.ErrDuplicate))
			Expect(dup.ID).To(BeZero())
		})

		It("reports missing users as typed failures", func() {
			_, err := env.Directory.GetUser(env.ctx, 4242)
			Expect(err).To(MatchError(auth.ErrNoSuchUser))

			_, err = env.Directory.GetUsers(env.ctx)
			Expect(err).To(MatchError(auth.ErrNoUsers))
		})

		It("updates activation state", func() {
			user := createUser("carol@example.com")
			user.Activated = false
			user.ActivationKey = "key"
			user.Meta.DisplayName = "Carol"
			Expect(env.Directory.UpdateUser(env.ctx, user)).To(Succeed())

			got, err := env.Directory.GetUser(env.ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.PendingActivation()).To(BeTrue())
			Expect(got.Meta.DisplayName).To(Equal("Carol"))
		})
	})

	Describe("groups", func() {
		It("creates, renames, grants and deletes", func() {
			group, err := env.Directory.AddGroup(env.ctx, "editors")
			Expect(err).NotTo(HaveOccurred())
			Expect(group.Permissions).To(BeEmpty())

			_, err = env.Directory.AddGroup(env.ctx, "editors")
			Expect(err).To(MatchError(auth.ErrColumnNotUnique))

			group, err = env.Directory.SetGroupPermissions(env.ctx, group.ID, []string{"news.*"})
			Expect(err).NotTo(HaveOccurred())
			Expect(group.Permissions).To(ConsistOf("news.*"))

			group.Name = "writers"
			Expect(env.Directory.UpdateGroup(env.ctx, group)).To(Succeed())
			byName, err := env.Directory.GetGroupByName(env.ctx, "writers")
			Expect(err).NotTo(HaveOccurred())
			Expect(byName.ID).To(Equal(group.ID))

			user := createUser("dave@example.com")
			_, err = env.Directory.SetUserGroupsByID(env.ctx, user.ID, []int64{group.ID})
			Expect(err).NotTo(HaveOccurred())

			Expect(env.Directory.DeleteGroup(env.ctx, group.ID)).To(Succeed())
			got, err := env.Directory.GetUser(env.ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Groups).To(BeEmpty())

			_, err = env.Directory.GetGroup(env.ctx, group.ID)
			Expect(err).To(MatchError(auth.ErrGroupNotFound))
		})

		It("ignores unknown group ids when replacing memberships", func() {
			user := createUser("erin@example.com")
			group, err := env.Directory.AddGroup(env.ctx, "admins")
			Expect(err).NotTo(HaveOccurred())

			got, err := env.Directory.SetUserGroupsByID(env.ctx, user.ID, []int64{group.ID, 9999})
			Expect(err).NotTo(HaveOccurred())
			Expect(got.GroupNames()).To(Equal([]string{"admins"}))
		})

		It("never mixes concurrent membership replacements", func() {
			user := createUser("frank@example.com")
			var ids []int64
			for _, name := range []string{"a", "b", "c", "d"} {
				g, err := env.Directory.AddGroup(env.ctx, name)
				Expect(err).NotTo(HaveOccurred())
				ids = append(ids, g.ID)
			}
			setA := ids[:2]
			setB := ids[2:]

			var wg sync.WaitGroup
			errs := make(chan error, 20)
			for i := range 20 {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					set := setA
					if i%2 == 1 {
						set = setB
					}
					errs <- env.Store.ReplaceUserGroups(env.ctx, user.ID, set)
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				Expect(err).NotTo(HaveOccurred())
			}

			got, err := env.Directory.GetUser(env.ctx, user.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.GroupIDs()).To(SatisfyAny(Equal(setA), Equal(setB)))
		})
	})

	Describe("login through the service", func() {
		It("authenticates a local user and records attempts", func() {
			local, err := auth.NewLocalDriver(env.Store, authtest.FastHasher(), auth.NewRandomGenerator(),
				auth.ProvisionPolicy{ActivationKeyLength: auth.DefaultTokenLength}, env.logger)
			Expect(err).NotTo(HaveOccurred())
			drivers, err := auth.NewDriverSet(env.logger, local)
			Expect(err).NotTo(HaveOccurred())
			perms, err := auth.NewPermissionChecker(16)
			Expect(err).NotTo(HaveOccurred())
			auditor, err := audit.NewLogger(env.Store, GinkgoT().TempDir()+"/wal.jsonl", env.logger)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(auditor.Close)
			svc, err := auth.NewService(local, drivers, env.Directory, authtest.FastHasher(), auditor, perms, env.logger)
			Expect(err).NotTo(HaveOccurred())

			_, err = svc.CreateUser(env.ctx, "grace@example.com", auth.NewUser{Password: "hunter2"})
			Expect(err).NotTo(HaveOccurred())

			sess := authtest.NewMemorySession()
			_, err = svc.LogIn(env.ctx, sess, "grace@example.com", auth.Credentials{Secret: "nope"})
			Expect(err).To(MatchError(auth.ErrLogInFailed))

			user, err := svc.LogIn(env.ctx, sess, "grace@example.com", auth.Credentials{Secret: "hunter2"})
			Expect(err).NotTo(HaveOccurred())
			Expect(user.Email).To(Equal("grace@example.com"))

			attempts, err := env.Store.ListRecent(env.ctx, "grace@example.com", 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(attempts).To(HaveLen(2))
			Expect(attempts[0].Status).To(Equal(auth.AttemptGood))
			Expect(attempts[1].Status).To(Equal(auth.AttemptBadCredentials))
		})
	})
})
