// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package cryptfile authenticates against a read-only file of crypt(3)
// hashes, one "email:hash" entry per line.
package cryptfile

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/GehirnInc/crypt"
	"github.com/GehirnInc/crypt/md5_crypt"
	"github.com/GehirnInc/crypt/sha256_crypt"
	"github.com/GehirnInc/crypt/sha512_crypt"
	"github.com/samber/oops"

	"github.com/holomush/ethanol/internal/auth"
)

// Name is the driver's registered name.
const Name = "cryptfile"

var crypters = map[string]func() crypt.Crypter{
	sha512_crypt.MagicPrefix: sha512_crypt.New,
	sha256_crypt.MagicPrefix: sha256_crypt.New,
	md5_crypt.MagicPrefix:    md5_crypt.New,
}

// Driver validates secrets against hashes loaded from a file. Only emails
// that also have a directory user are recognized.
type Driver struct {
	path   string
	store  auth.DirectoryStore
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]string
}

var _ auth.Driver = (*Driver)(nil)

// New loads path and returns the driver.
func New(path string, store auth.DirectoryStore, logger *slog.Logger) (*Driver, error) {
	if path == "" {
		return nil, oops.Errorf("credential file path is required")
	}
	if store == nil {
		return nil, oops.Errorf("directory store is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	d := &Driver{path: path, store: store, logger: logger}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Reload re-reads the credential file. On error the previous entries stay
// in effect.
func (d *Driver) Reload() error {
	f, err := os.Open(d.path)
	if err != nil {
		return oops.Code("CREDENTIAL_FILE_UNREADABLE").With("path", d.path).Wrap(err)
	}
	defer f.Close() //nolint:errcheck // read-only

	entries, err := Parse(f)
	if err != nil {
		return oops.With("path", d.path).Wrap(err)
	}

	d.mu.Lock()
	d.entries = entries
	d.mu.Unlock()
	d.logger.Debug("loaded credential file", "path", d.path, "entries", len(entries))
	return nil
}

// Parse reads "email:hash" lines. Blank lines and lines starting with # are
// skipped. Emails are normalized; a later entry for the same email wins.
func Parse(r io.Reader) (map[string]string, error) {
	entries := map[string]string{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		email, hash, ok := strings.Cut(line, ":")
		email = auth.NormalizeEmail(email)
		if !ok || email == "" || hash == "" {
			return nil, oops.Code("CREDENTIAL_FILE_MALFORMED").
				With("line", lineNo).
				Errorf("expected email:hash")
		}
		if crypterFor(hash) == nil {
			return nil, oops.Code("CREDENTIAL_FILE_MALFORMED").
				With("line", lineNo).
				Errorf("unsupported hash format")
		}
		entries[email] = hash
	}
	if err := scanner.Err(); err != nil {
		return nil, oops.Code("CREDENTIAL_FILE_UNREADABLE").Wrap(err)
	}
	return entries, nil
}

func crypterFor(hash string) crypt.Crypter {
	for prefix, newCrypter := range crypters {
		if strings.HasPrefix(hash, prefix) {
			return newCrypter()
		}
	}
	return nil
}

func (d *Driver) lookup(email string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	hash, ok := d.entries[email]
	return hash, ok
}

// Name returns "cryptfile".
func (d *Driver) Name() string {
	return Name
}

// UserExists reports whether email is in both the file and the directory.
func (d *Driver) UserExists(ctx context.Context, email string) (bool, error) {
	email = auth.NormalizeEmail(email)
	if _, ok := d.lookup(email); !ok {
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

// ValidateUser checks the secret against the file hash and returns the
// directory user.
func (d *Driver) ValidateUser(ctx context.Context, email string, creds auth.Credentials) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	hash, ok := d.lookup(email)
	if !ok || creds.Secret == "" {
		return nil, nil
	}
	crypter := crypterFor(hash)
	if crypter == nil {
		return nil, nil
	}
	if err := crypter.Verify(hash, []byte(creds.Secret)); err != nil {
		if errors.Is(err, crypt.ErrKeyMismatch) {
			return nil, nil
		}
		return nil, oops.With("driver", Name).With("email", email).Wrap(err)
	}

	user, err := d.store.GetUserByEmail(ctx, email)
	if errors.Is(err, auth.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, oops.With("driver", Name).Wrap(err)
	}
	if user.PendingActivation() {
		return nil, nil
	}
	return user, nil
}

// CreateUser always fails; the file is managed outside ethanol.
func (d *Driver) CreateUser(_ context.Context, email string, _ auth.NewUser) (*auth.User, error) {
	return nil, readOnly(email)
}

// ActivateUser always fails; the file is managed outside ethanol.
func (d *Driver) ActivateUser(_ context.Context, activation auth.Activation) (bool, error) {
	return false, readOnly(activation.Email)
}

func readOnly(email string) error {
	return oops.Code("DRIVER_READ_ONLY").
		With("driver", Name).
		With("email", email).
		Errorf("the %s driver is read-only", Name)
}
