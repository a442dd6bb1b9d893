// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
)

// TokenIssuer is the stateless session issuer.
const TokenIssuer = "ethanol"

// MinSecretLength is the shortest HS256 secret NewTokenSigner accepts.
const MinSecretLength = 32

type tokenClaims struct {
	Slots map[string]int64 `json:"slots,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner issues and parses session tokens.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner creates a signer. Tokens expire ttl after their last write.
func NewTokenSigner(secret []byte, ttl time.Duration) (*TokenSigner, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("min_length", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if ttl <= 0 {
		return nil, oops.With("ttl", ttl).Errorf("token ttl must be positive")
	}
	return &TokenSigner{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Session parses raw into a session. An empty raw starts an empty session.
func (s *TokenSigner) Session(raw string) (*Token, error) {
	t := &Token{signer: s, slots: map[string]int64{}}
	if raw == "" {
		return t, nil
	}

	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, oops.With("alg", token.Method.Alg()).Errorf("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithIssuer(TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, oops.Code("SESSION_TOKEN_INVALID").Wrap(err)
	}
	maps.Copy(t.slots, claims.Slots)
	t.raw = raw
	return t, nil
}

func (s *TokenSigner) sign(slots map[string]int64) (string, error) {
	now := s.now()
	claims := tokenClaims{
		Slots: slots,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("SESSION_WRITE_FAILED").Wrap(err)
	}
	return signed, nil
}

// Token is a session whose state travels with the client.
type Token struct {
	signer *TokenSigner
	slots  map[string]int64
	raw    string
}

var _ auth.SessionStore = (*Token)(nil)

// String returns the current signed token, or "" if nothing was ever written.
func (t *Token) String() string {
	return t.raw
}

// Get returns the ID stored under key.
func (t *Token) Get(_ context.Context, key string) (int64, bool, error) {
	id, ok := t.slots[key]
	return id, ok, nil
}

// Set stores id and re-issues the token.
func (t *Token) Set(_ context.Context, key string, id int64) error {
	next := maps.Clone(t.slots)
	next[key] = id
	return t.reissue(next)
}

// Delete removes key and re-issues the token.
func (t *Token) Delete(_ context.Context, key string) error {
	if _, ok := t.slots[key]; !ok {
		return nil
	}
	next := maps.Clone(t.slots)
	delete(next, key)
	return t.reissue(next)
}

func (t *Token) reissue(slots map[string]int64) error {
	raw, err := t.signer.sign(slots)
	if err != nil {
		return err
	}
	t.slots = slots
	t.raw = raw
	return nil
}
