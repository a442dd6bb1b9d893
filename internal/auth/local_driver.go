// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/ethanol/pkg/errutil"
)

// ProvisionPolicy controls account provisioning.
type ProvisionPolicy struct {
	// ActivateEmails makes new accounts pending until their activation key
	// is redeemed.
	ActivateEmails bool

	// ActivationKeyLength sizes generated activation keys.
	ActivationKeyLength int
}

// LocalDriver authenticates password accounts stored in the directory.
type LocalDriver struct {
	store  DirectoryStore
	hasher CredentialHasher
	random TokenGenerator
	policy ProvisionPolicy
	logger *slog.Logger
}

// NewLocalDriver creates the built-in "database" driver.
func NewLocalDriver(store DirectoryStore, hasher CredentialHasher, random TokenGenerator, policy ProvisionPolicy, logger *slog.Logger) (*LocalDriver, error) {
	if store == nil {
		return nil, oops.Errorf("directory store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("credential hasher is required")
	}
	if random == nil {
		return nil, oops.Errorf("token generator is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if policy.ActivationKeyLength <= 0 {
		policy.ActivationKeyLength = DefaultTokenLength
	}
	return &LocalDriver{
		store:  store,
		hasher: hasher,
		random: random,
		policy: policy,
		logger: logger,
	}, nil
}

// Name returns DefaultDriverName.
func (d *LocalDriver) Name() string {
	return DefaultDriverName
}

// UserExists reports whether a password account is registered under email.
func (d *LocalDriver) UserExists(ctx context.Context, email string) (bool, error) {
	user, err := d.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, oops.With("driver", d.Name()).Wrap(err)
	}
	return user.Password != "", nil
}

// ValidateUser re-hashes the secret with the stored salt and compares it to
// the stored digest. Accounts pending activation never validate.
func (d *LocalDriver) ValidateUser(ctx context.Context, email string, creds Credentials) (*User, error) {
	user, err := d.store.GetUserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("driver", d.Name()).Wrap(err)
	}
	if user.Password == "" || creds.Secret == "" {
		return nil, nil
	}

	ok, err := d.hasher.Verify(creds.Secret, user.Salt, user.Password)
	if err != nil {
		return nil, oops.With("driver", d.Name()).With("user_id", user.ID).Wrap(err)
	}
	if !ok || user.PendingActivation() {
		return nil, nil
	}

	if d.hasher.NeedsUpgrade(user.Password) {
		d.upgradeDigest(ctx, user, creds.Secret)
	}
	return user, nil
}

// upgradeDigest re-hashes with current parameters. Failures are logged; the
// old digest remains valid.
func (d *LocalDriver) upgradeDigest(ctx context.Context, user *User, secret string) {
	digest, err := d.hasher.Hash(secret, user.Salt)
	if err != nil {
		errutil.LogError(d.logger, "digest upgrade failed", oops.With("user_id", user.ID).Wrap(err))
		return
	}
	previous := user.Password
	user.Password = digest
	if err := d.store.UpdateUser(ctx, user); err != nil {
		user.Password = previous
		errutil.LogError(d.logger, "digest upgrade failed", oops.With("user_id", user.ID).Wrap(err))
		return
	}
	d.logger.Info("upgraded credential digest", "user_id", user.ID)
}

// CreateUser provisions a password account. The salt is derived once from
// the email and a random token; the digest is the password hashed under it.
func (d *LocalDriver) CreateUser(ctx context.Context, email string, data NewUser) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, oops.Code("INVALID_EMAIL").With("email", email).Errorf("a valid email address is required")
	}
	if data.Password == "" {
		return nil, oops.Code("AUTH_EMPTY_SECRET").Wrap(ErrEmptySecret)
	}

	salt, err := NewSalt(d.hasher, d.random, email)
	if err != nil {
		return nil, err
	}
	digest, err := d.hasher.Hash(data.Password, salt)
	if err != nil {
		return nil, oops.With("operation", "hash password").Wrap(err)
	}

	user := &User{
		Username:  usernameFor(email, data.Username),
		Email:     email,
		Password:  digest,
		Salt:      salt,
		Activated: true,
		Driver:    d.Name(),
		Meta:      metaFor(data.Meta),
	}
	if d.policy.ActivateEmails {
		key, err := d.random.Generate(d.policy.ActivationKeyLength)
		if err != nil {
			return nil, err
		}
		user.ActivationKey = key
		user.Activated = false
	}

	if err := d.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicate) {
			return nil, ColumnNotUnique("email", email)
		}
		return nil, oops.With("operation", "create user").With("email", email).Wrap(err)
	}
	return user, nil
}

// ActivateUser redeems an activation key. It returns false when the email is
// unknown, the key does not match, or the account has no pending key.
func (d *LocalDriver) ActivateUser(ctx context.Context, activation Activation) (bool, error) {
	user, err := d.store.GetUserByEmail(ctx, NormalizeEmail(activation.Email))
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, oops.With("driver", d.Name()).Wrap(err)
	}
	if !user.PendingActivation() || activation.Key == "" {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(user.ActivationKey), []byte(activation.Key)) != 1 {
		return false, nil
	}

	user.ActivationKey = ""
	user.Activated = true
	if err := d.store.UpdateUser(ctx, user); err != nil {
		return false, oops.With("operation", "activate user").With("user_id", user.ID).Wrap(err)
	}
	return true, nil
}

// ChangePassword re-hashes a new password under the user's existing salt.
func (d *LocalDriver) ChangePassword(ctx context.Context, user *User, current, next Credentials) error {
	if user.Password == "" {
		return oops.Code("DRIVER_READ_ONLY").With("driver", user.Driver).
			Errorf("account has no local password")
	}
	ok, err := d.hasher.Verify(current.Secret, user.Salt, user.Password)
	if err != nil {
		return oops.With("user_id", user.ID).Wrap(err)
	}
	if !ok {
		return logInFailed()
	}
	digest, err := d.hasher.Hash(next.Secret, user.Salt)
	if err != nil {
		return err
	}
	user.Password = digest
	if err := d.store.UpdateUser(ctx, user); err != nil {
		return oops.With("operation", "change password").With("user_id", user.ID).Wrap(err)
	}
	return nil
}

func usernameFor(email, requested string) string {
	if name := strings.TrimSpace(requested); name != "" {
		return name
	}
	local, _, _ := strings.Cut(email, "@")
	return local
}

func metaFor(meta UserMeta) UserMeta {
	if meta.Attributes == nil {
		meta.Attributes = map[string]string{}
	}
	return meta
}
