// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/samber/oops"
)

// DefaultTokenLength is used when Generate is asked for a non-positive length.
const DefaultTokenLength = 32

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// TokenGenerator produces random alphanumeric strings.
type TokenGenerator interface {
	Generate(length int) (string, error)
}

// RandomGenerator draws tokens from a cryptographically secure source.
type RandomGenerator struct {
	source io.Reader
}

// NewRandomGenerator returns a generator backed by crypto/rand.
func NewRandomGenerator() *RandomGenerator {
	return &RandomGenerator{source: rand.Reader}
}

// NewRandomGeneratorFrom returns a generator reading from source.
func NewRandomGeneratorFrom(source io.Reader) *RandomGenerator {
	return &RandomGenerator{source: source}
}

// Generate returns length characters drawn uniformly from [A-Za-z0-9].
func (g *RandomGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		length = DefaultTokenLength
	}

	limit := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(g.source, limit)
		if err != nil {
			return "", oops.Code("RANDOM_FAILED").With("length", length).Wrap(err)
		}
		out[i] = tokenAlphabet[n.Int64()]
	}
	return string(out), nil
}
