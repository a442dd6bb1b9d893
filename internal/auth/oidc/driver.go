// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package oidc authenticates directory users with ID tokens issued by an
// OpenID Connect provider.
package oidc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
)

// Name is the driver's registered name.
const Name = "oidc"

// TokenVerifier checks a raw ID token. *gooidc.IDTokenVerifier implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) (*gooidc.IDToken, error)
}

type identityClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// Driver treats Credentials.Secret as a raw ID token.
type Driver struct {
	verifier TokenVerifier
	store    auth.DirectoryStore
	hasher   auth.CredentialHasher
	random   auth.TokenGenerator
	domains  map[string]struct{}
	logger   *slog.Logger
}

var _ auth.Driver = (*Driver)(nil)

// Discover fetches the provider's discovery document and returns a verifier
// for tokens issued to clientID.
func Discover(ctx context.Context, issuer, clientID string) (*gooidc.IDTokenVerifier, error) {
	if clientID == "" {
		return nil, oops.Errorf("oidc client id is required")
	}
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, oops.Code("OIDC_DISCOVERY_FAILED").With("issuer", issuer).Wrap(err)
	}
	return provider.Verifier(&gooidc.Config{ClientID: clientID}), nil
}

// New creates the driver. Only emails in one of domains are recognized.
// hasher derives the salts of provisioned users.
func New(verifier TokenVerifier, store auth.DirectoryStore, hasher auth.CredentialHasher, domains []string, logger *slog.Logger) (*Driver, error) {
	if verifier == nil {
		return nil, oops.Errorf("token verifier is required")
	}
	if store == nil {
		return nil, oops.Errorf("directory store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	allowed := make(map[string]struct{}, len(domains))
	for _, d := range domains {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			allowed[d] = struct{}{}
		}
	}
	if len(allowed) == 0 {
		return nil, oops.Code("OIDC_NO_DOMAINS").Errorf("at least one allowed domain is required")
	}
	return &Driver{
		verifier: verifier,
		store:    store,
		hasher:   hasher,
		random:   auth.NewRandomGenerator(),
		domains:  allowed,
		logger:   logger,
	}, nil
}

// Name returns "oidc".
func (d *Driver) Name() string {
	return Name
}

func (d *Driver) allowed(email string) bool {
	_, domain, ok := strings.Cut(email, "@")
	if !ok {
		return false
	}
	_, found := d.domains[domain]
	return found
}

// UserExists reports whether email is in an allowed domain and has a
// directory user.
func (d *Driver) UserExists(ctx context.Context, email string) (bool, error) {
	email = auth.NormalizeEmail(email)
	if !d.allowed(email) {
		return false, nil
	}
	_, err := d.store.GetUserByEmail(ctx, email)
	if errors.Is(err, auth.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, oops.With("driver", Name).Wrap(err)
	}
	return true, nil
}

// ValidateUser verifies the ID token and requires a verified email claim
// equal to email. Users still pending activation never validate.
func (d *Driver) ValidateUser(ctx context.Context, email string, creds auth.Credentials) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	if !d.allowed(email) || creds.Secret == "" {
		return nil, nil
	}

	token, err := d.verifier.Verify(ctx, creds.Secret)
	if err != nil {
		d.logger.Debug("id token rejected", "email", email, "error", err)
		return nil, nil
	}
	var claims identityClaims
	if err := token.Claims(&claims); err != nil {
		return nil, oops.With("driver", Name).With("operation", "decode claims").Wrap(err)
	}
	if !claims.EmailVerified || auth.NormalizeEmail(claims.Email) != email {
		d.logger.Debug("id token identity mismatch", "email", email, "subject", token.Subject)
		return nil, nil
	}

	user, err := d.store.GetUserByEmail(ctx, email)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("driver", Name).Wrap(err)
	}
	if user.PendingActivation() {
		d.logger.Debug("pending user refused", "email", email)
		return nil, nil
	}
	return user, nil
}

// CreateUser provisions an activated directory user without a password.
func (d *Driver) CreateUser(ctx context.Context, email string, data auth.NewUser) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	if !d.allowed(email) {
		return nil, oops.Code("OIDC_DOMAIN_NOT_ALLOWED").With("email", email).
			Errorf("email domain is not allowed for %s", Name)
	}
	salt, err := auth.NewSalt(d.hasher, d.random, email)
	if err != nil {
		return nil, oops.With("driver", Name).Wrap(err)
	}

	username := strings.TrimSpace(data.Username)
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	meta := data.Meta
	if meta.Attributes == nil {
		meta.Attributes = map[string]string{}
	}
	user := &auth.User{
		Username:  username,
		Email:     email,
		Salt:      salt,
		Activated: true,
		Driver:    Name,
		Meta:      meta,
	}
	if err := d.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, auth.ErrDuplicate) {
			return nil, auth.ColumnNotUnique("email", email)
		}
		return nil, oops.With("driver", Name).With("email", email).Wrap(err)
	}
	return user, nil
}

// ActivateUser reports true for any existing user; the provider has already
// verified the address.
func (d *Driver) ActivateUser(ctx context.Context, activation auth.Activation) (bool, error) {
	return d.UserExists(ctx, activation.Email)
}
