// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/scrypt"
)

// Hash algorithm identifiers as they appear in digests and configuration.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmScrypt   = "scrypt"
)

var (
	// ErrEmptySecret is returned when asked to hash an empty secret.
	ErrEmptySecret = errors.New("secret cannot be empty")

	// ErrEmptySalt is returned when asked to hash without a salt.
	ErrEmptySalt = errors.New("salt cannot be empty")
)

// CredentialHasher derives digests from a secret and a caller-supplied salt.
// Hash is deterministic: the same secret, salt and parameters always produce
// the same digest. The salt is stored next to the digest, not inside it.
type CredentialHasher interface {
	// Hash produces a self-describing digest of secret under salt.
	Hash(secret, salt string) (string, error)

	// Verify reports whether secret under salt produces digest.
	// Returns (false, nil) on mismatch and an error only for malformed digests.
	Verify(secret, salt, digest string) (bool, error)

	// NeedsUpgrade reports whether digest was produced with other parameters
	// than the hasher currently uses.
	NeedsUpgrade(digest string) bool
}

// Argon2Params tunes argon2id.
type Argon2Params struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8
	KeyLen    uint32
}

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{Time: 1, MemoryKiB: 64 * 1024, Threads: 4, KeyLen: 32}
}

// Argon2idHasher implements CredentialHasher using argon2id.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates an Argon2idHasher. Zero fields fall back to the
// defaults.
func NewArgon2idHasher(params Argon2Params) *Argon2idHasher {
	def := DefaultArgon2Params()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = def.MemoryKiB
	}
	if params.Threads == 0 {
		params.Threads = def.Threads
	}
	if params.KeyLen == 0 {
		params.KeyLen = def.KeyLen
	}
	return &Argon2idHasher{params: params}
}

// Hash produces $argon2id$v=19$m=<kib>,t=<n>,p=<n>$<key>.
func (h *Argon2idHasher) Hash(secret, salt string) (string, error) {
	if err := checkHashInput(secret, salt); err != nil {
		return "", err
	}
	p := h.params
	key := argon2.IDKey([]byte(secret), []byte(salt), p.Time, p.MemoryKiB, p.Threads, p.KeyLen)
	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s",
		AlgorithmArgon2id,
		argon2.Version,
		p.MemoryKiB,
		p.Time,
		p.Threads,
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the digest with the parameters encoded in it.
func (h *Argon2idHasher) Verify(secret, salt, digest string) (bool, error) {
	params, expected, err := parseArgon2Digest(digest)
	if err != nil {
		return false, err
	}
	computed := argon2.IDKey([]byte(secret), []byte(salt), params.Time, params.MemoryKiB, params.Threads, params.KeyLen)
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade reports true for non-argon2id digests and for argon2id digests
// produced with other parameters.
func (h *Argon2idHasher) NeedsUpgrade(digest string) bool {
	params, _, err := parseArgon2Digest(digest)
	if err != nil {
		return true
	}
	return params != h.params
}

func parseArgon2Digest(digest string) (Argon2Params, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 5 {
		return Argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != AlgorithmArgon2id {
		return Argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return Argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, time, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return Argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	// Validate threads fits in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return Argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid threads value: %d", threads)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return Argon2Params{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return Argon2Params{
		Time:      time,
		MemoryKiB: memory,
		Threads:   uint8(threads),
		KeyLen:    uint32(len(key)),
	}, key, nil
}

// ScryptParams tunes scrypt. N is 1<<LogN.
type ScryptParams struct {
	LogN   uint8
	R      int
	P      int
	KeyLen int
}

// DefaultScryptParams returns the parameters recommended by the scrypt paper
// for interactive logins.
func DefaultScryptParams() ScryptParams {
	return ScryptParams{LogN: 15, R: 8, P: 1, KeyLen: 32}
}

// ScryptHasher implements CredentialHasher using scrypt.
type ScryptHasher struct {
	params ScryptParams
}

// NewScryptHasher creates a ScryptHasher. Zero fields fall back to the
// defaults.
func NewScryptHasher(params ScryptParams) *ScryptHasher {
	def := DefaultScryptParams()
	if params.LogN == 0 {
		params.LogN = def.LogN
	}
	if params.R == 0 {
		params.R = def.R
	}
	if params.P == 0 {
		params.P = def.P
	}
	if params.KeyLen == 0 {
		params.KeyLen = def.KeyLen
	}
	return &ScryptHasher{params: params}
}

// Hash produces $scrypt$ln=<n>,r=<n>,p=<n>$<key>.
func (h *ScryptHasher) Hash(secret, salt string) (string, error) {
	if err := checkHashInput(secret, salt); err != nil {
		return "", err
	}
	p := h.params
	key, err := scrypt.Key([]byte(secret), []byte(salt), 1<<p.LogN, p.R, p.P, p.KeyLen)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("algorithm", AlgorithmScrypt).Wrap(err)
	}
	return fmt.Sprintf(
		"$%s$ln=%d,r=%d,p=%d$%s",
		AlgorithmScrypt,
		p.LogN,
		p.R,
		p.P,
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the digest with the parameters encoded in it.
func (h *ScryptHasher) Verify(secret, salt, digest string) (bool, error) {
	params, expected, err := parseScryptDigest(digest)
	if err != nil {
		return false, err
	}
	computed, err := scrypt.Key([]byte(secret), []byte(salt), 1<<params.LogN, params.R, params.P, params.KeyLen)
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", AlgorithmScrypt).Wrap(err)
	}
	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// NeedsUpgrade reports true for non-scrypt digests and for scrypt digests
// produced with other parameters.
func (h *ScryptHasher) NeedsUpgrade(digest string) bool {
	params, _, err := parseScryptDigest(digest)
	if err != nil {
		return true
	}
	return params != h.params
}

func parseScryptDigest(digest string) (ScryptParams, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 4 {
		return ScryptParams{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}
	if parts[1] != AlgorithmScrypt {
		return ScryptParams{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var logN, r, p int
	if _, err := fmt.Sscanf(parts[2], "ln=%d,r=%d,p=%d", &logN, &r, &p); err != nil {
		return ScryptParams{}, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if logN < 1 || logN > 31 || r < 1 || p < 1 {
		return ScryptParams{}, nil, oops.Code("AUTH_INVALID_HASH").
			Errorf("invalid scrypt parameters: ln=%d r=%d p=%d", logN, r, p)
	}

	key, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return ScryptParams{}, nil, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if len(key) == 0 || len(key) > 1<<10 {
		return ScryptParams{}, nil, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", len(key))
	}

	return ScryptParams{LogN: uint8(logN), R: r, P: p, KeyLen: len(key)}, key, nil
}

// NewHasher selects a hasher by algorithm name.
func NewHasher(algorithm string, argon Argon2Params, sc ScryptParams) (CredentialHasher, error) {
	switch algorithm {
	case AlgorithmArgon2id, "":
		return NewArgon2idHasher(argon), nil
	case AlgorithmScrypt:
		return NewScryptHasher(sc), nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_ALGORITHM").
			With("algorithm", algorithm).
			Errorf("unknown hash algorithm %q", algorithm)
	}
}

// NewSalt derives a fresh per-user salt by hashing the email under a random
// token. The result is unique with overwhelming probability.
func NewSalt(hasher CredentialHasher, random TokenGenerator, email string) (string, error) {
	token, err := random.Generate(DefaultTokenLength)
	if err != nil {
		return "", err
	}
	salt, err := hasher.Hash(email, token)
	if err != nil {
		return "", oops.With("operation", "derive salt").Wrap(err)
	}
	return salt, nil
}

func checkHashInput(secret, salt string) error {
	if secret == "" {
		return oops.Code("AUTH_EMPTY_SECRET").Wrap(ErrEmptySecret)
	}
	if salt == "" {
		return oops.Code("AUTH_EMPTY_SALT").Wrap(ErrEmptySalt)
	}
	return nil
}
