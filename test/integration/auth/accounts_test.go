// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package auth_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/gatekeep/internal/identity"
	"github.com/holomush/gatekeep/internal/session"
	"github.com/holomush/gatekeep/internal/store/postgres"
	"github.com/holomush/gatekeep/internal/transport/transporttest"
)

// register creates and persists an account, logging it in on t.
func register(ctx context.Context, t *transporttest.Fake, login, secret string) *identity.Account {
	acct, err := identity.NewAccount(login)
	Expect(err).NotTo(HaveOccurred())
	Expect(env.Creds.SetSecret(acct, secret)).To(Succeed())
	acct.Credentials.Confirmation = secret
	Expect(env.Registry.Save(ctx, t, acct, false)).To(Succeed())
	return acct
}

var _ = Describe("Account persistence", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupAccounts(ctx)
	})

	Describe("schema", func() {
		It("exposes every optional column group after migrating", func() {
			features, err := postgres.DetectFeatures(ctx, env.pool)
			Expect(err).NotTo(HaveOccurred())
			Expect(features).To(Equal(postgres.AllFeatures))
		})

		It("reports no pending migrations", func() {
			m, err := postgres.NewMigrator(env.connStr)
			Expect(err).NotTo(HaveOccurred())
			defer func() { _ = m.Close() }()

			pending, err := m.Pending()
			Expect(err).NotTo(HaveOccurred())
			Expect(pending).To(BeEmpty())

			version, dirty, err := m.Version()
			Expect(err).NotTo(HaveOccurred())
			Expect(dirty).To(BeFalse())
			Expect(version).To(BeNumerically(">=", 3))
		})
	})

	Describe("registration", func() {
		It("stores a hashed secret and logs the account in", func() {
			t := transporttest.New()
			acct := register(ctx, t, "alice", "correct horse")

			found, err := env.Accounts.FindBy(ctx, postgres.FieldLogin, "alice")
			Expect(err).NotTo(HaveOccurred())
			stored := found.(*identity.Account)
			Expect(stored.ID).To(Equal(acct.ID))
			Expect(stored.Credentials.Stored).NotTo(BeEmpty())
			Expect(stored.Credentials.Stored).NotTo(ContainSubstring("correct horse"))
			Expect(stored.Credentials.RememberToken).NotTo(BeEmpty())
			Expect(stored.LoginCount).To(Equal(1))

			s, err := env.Engine.Find(ctx, t.NextRequest(), "")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Record().Key()).To(Equal(acct.Key()))
		})

		It("rejects a login differing only in case", func() {
			register(ctx, transporttest.New(), "alice", "correct horse")

			dup, err := identity.NewAccount("ALICE")
			Expect(err).NotTo(HaveOccurred())
			Expect(env.Creds.SetSecret(dup, "another secret")).To(Succeed())
			dup.Credentials.Confirmation = "another secret"

			err = env.Registry.Save(ctx, transporttest.New(), dup, false)
			Expect(err).To(HaveOccurred())
			Expect(identity.DuplicateField(err)).To(Equal(postgres.FieldLogin))
		})
	})

	Describe("login", func() {
		BeforeEach(func() {
			register(ctx, transporttest.New(), "bob", "open sesame")
		})

		It("authenticates with the right secret and counts the login", func() {
			t := transporttest.New()
			s, err := env.Engine.NewWithCredentials(t, "", "bob", "open sesame")
			Expect(err).NotTo(HaveOccurred())
			s.SetRememberMe(true)

			saved, err := s.Save(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(BeTrue())

			found, err := env.Accounts.FindBy(ctx, postgres.FieldLogin, "bob")
			Expect(err).NotTo(HaveOccurred())
			stored := found.(*identity.Account)
			Expect(stored.LoginCount).To(Equal(2))
			Expect(stored.CurrentLoginIP).To(Equal(t.Origin))
		})

		It("records a failed attempt for a wrong secret", func() {
			s, err := env.Engine.NewWithCredentials(transporttest.New(), "", "bob", "wrong")
			Expect(err).NotTo(HaveOccurred())

			saved, err := s.Save(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(BeFalse())
			Expect(s.Errors().Empty()).To(BeFalse())

			found, err := env.Accounts.FindBy(ctx, postgres.FieldLogin, "bob")
			Expect(err).NotTo(HaveOccurred())
			failures, at := found.(*identity.Account).FailedLogins()
			Expect(failures).To(Equal(1))
			Expect(at).NotTo(BeNil())
		})

		It("resumes from the remember cookie once the slot is gone", func() {
			t := transporttest.New()
			s, err := env.Engine.NewWithCredentials(t, "", "bob", "open sesame")
			Expect(err).NotTo(HaveOccurred())
			s.SetRememberMe(true)
			Expect(s.SaveStrict(ctx)).To(Succeed())

			next := t.NextRequest()
			clear(next.Slots)

			resumed, err := env.Engine.Find(ctx, next, "")
			Expect(err).NotTo(HaveOccurred())
			Expect(resumed.Strategy()).To(Equal(session.StrategyCookie))
		})
	})

	Describe("forget", func() {
		It("rotates the remember token so other clients are logged out", func() {
			owner := transporttest.New()
			acct := register(ctx, owner, "carol", "hunter22")

			other := transporttest.New()
			s, err := env.Engine.NewWithCredentials(other, "", "carol", "hunter22")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.SaveStrict(ctx)).To(Succeed())
			before := acct.Credentials.RememberToken

			Expect(env.Registry.Forget(ctx, owner, acct)).To(Succeed())
			Expect(acct.Credentials.RememberToken).NotTo(Equal(before))

			_, err = env.Engine.Find(ctx, other.NextRequest(), "")
			Expect(errors.Is(err, session.ErrNoSession)).To(BeTrue())

			_, err = env.Engine.Find(ctx, owner.NextRequest(), "")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
