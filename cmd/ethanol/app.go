// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/ethanol/internal/audit"
	"github.com/holomush/ethanol/internal/auth"
	"github.com/holomush/ethanol/internal/auth/cryptfile"
	"github.com/holomush/ethanol/internal/auth/oidc"
	"github.com/holomush/ethanol/internal/auth/postgres"
	"github.com/holomush/ethanol/internal/auth/sqlite"
	"github.com/holomush/ethanol/internal/config"
	"github.com/holomush/ethanol/internal/logging"
	"github.com/holomush/ethanol/internal/session"
	"github.com/holomush/ethanol/internal/store"
	"github.com/holomush/ethanol/internal/xdg"
	"github.com/holomush/ethanol/pkg/errutil"
)

// app is the composition root shared by subcommands.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	out     printer
	closers []func() error

	directory auth.DirectoryStore
	attempts  auth.AttemptStore
	ping      func(ctx context.Context) error
	sqlDB     *sql.DB

	hasher   auth.CredentialHasher
	drivers  *auth.DriverSet
	dir      *auth.Directory
	registry *auth.Registry
	auditor  *audit.Logger
}

// loadConfig resolves configuration and logging without touching storage.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (config.Config, *slog.Logger, printer, error) {
	out, err := newPrinter(cmd.OutOrStdout(), opts.output)
	if err != nil {
		return config.Config{}, nil, printer{}, err
	}
	cfg, err := config.Load(opts.configFile, cmd.Flags())
	if err != nil {
		return config.Config{}, nil, printer{}, err
	}
	logger := logging.Setup("ethanol", version, logging.Options{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
	}, cmd.ErrOrStderr())
	return cfg, logger, out, nil
}

// withApp builds the app, runs fn and releases every resource.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) error {
	cfg, logger, out, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a := &app{cfg: cfg, logger: logger, out: out}
	defer func() {
		if cerr := a.close(); cerr != nil {
			errutil.LogError(logger, "shutdown failed", cerr)
		}
	}()
	if err := a.open(ctx); err != nil {
		return err
	}
	return fn(ctx, a)
}

func (a *app) open(ctx context.Context) error {
	if err := a.openStores(ctx); err != nil {
		return err
	}

	hasher, err := auth.NewHasher(a.cfg.Hasher.Algorithm, a.cfg.Hasher.Argon2Params(), a.cfg.Hasher.ScryptParams())
	if err != nil {
		return err
	}
	a.hasher = hasher

	drivers, err := a.buildDrivers(ctx)
	if err != nil {
		return err
	}
	a.drivers, err = auth.NewDriverSet(a.logger, drivers...)
	if err != nil {
		return err
	}

	a.dir, err = auth.NewDirectory(a.directory)
	if err != nil {
		return err
	}
	perms, err := auth.NewPermissionChecker(a.cfg.Auth.PermissionCacheSize)
	if err != nil {
		return err
	}

	a.auditor, err = audit.NewLogger(a.attempts, a.cfg.Audit.WALPath, a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.auditor.Close)

	a.registry, err = auth.NewRegistry(a.drivers, a.cfg.Auth.DefaultAuthDriver, func(active auth.Driver) (*auth.Service, error) {
		return auth.NewService(active, a.drivers, a.dir, a.hasher, a.auditor, perms, a.logger)
	})
	return err
}

func (a *app) openStores(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case config.DatabasePostgres:
		pool, err := store.Connect(ctx, a.cfg.Database.DSN, store.ConnectOptions{
			MaxConns:     a.cfg.Database.MaxConns,
			PingAttempts: a.cfg.Database.PingAttempts,
			PingBackoff:  a.cfg.Database.PingBackoff,
		}, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		pg := postgres.New(pool)
		a.directory, a.attempts, a.ping = pg, pg, pool.Ping
	default:
		if err := xdg.EnsureDir(filepath.Dir(a.cfg.Database.Path)); err != nil {
			return err
		}
		lite, err := sqlite.Open(a.cfg.Database.Path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, lite.Close)
		sqlDB, err := lite.DB()
		if err != nil {
			return err
		}
		a.directory, a.attempts, a.ping, a.sqlDB = lite, lite, lite.Ping, sqlDB
	}
	return nil
}

func (a *app) buildDrivers(ctx context.Context) ([]auth.Driver, error) {
	drivers := make([]auth.Driver, 0, len(a.cfg.Auth.Drivers))
	for _, name := range a.cfg.Auth.Drivers {
		switch name {
		case config.DriverDatabase:
			local, err := auth.NewLocalDriver(a.directory, a.hasher, auth.NewRandomGenerator(), a.cfg.Auth.Policy(), a.logger)
			if err != nil {
				return nil, err
			}
			drivers = append(drivers, local)
		case config.DriverCryptFile:
			d, err := cryptfile.New(a.cfg.CryptFile.Path, a.directory, a.logger)
			if err != nil {
				return nil, err
			}
			drivers = append(drivers, d)
		case config.DriverOIDC:
			verifier, err := oidc.Discover(ctx, a.cfg.OIDC.Issuer, a.cfg.OIDC.ClientID)
			if err != nil {
				return nil, err
			}
			d, err := oidc.New(verifier, a.directory, a.hasher, a.cfg.OIDC.Domains, a.logger)
			if err != nil {
				return nil, err
			}
			drivers = append(drivers, d)
		default:
			return nil, oops.Code("CONFIG_INVALID").With("driver", name).Errorf("unknown auth driver %q", name)
		}
	}
	return drivers, nil
}

// sessions returns the configured session backend.
func (a *app) sessions(ctx context.Context) (session.Opener, error) {
	ttl := a.cfg.Session.TTL
	switch a.cfg.Session.Backend {
	case config.SessionRedis:
		client, err := session.DialRedis(ctx, a.cfg.Session.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		backend, err := session.NewRedisBackend(client, ttl, a.cfg.Session.RedisPrefix)
		if err != nil {
			return nil, err
		}
		return backend, nil
	case config.SessionSCS:
		if a.sqlDB == nil {
			return nil, oops.Code("CONFIG_INVALID").Errorf("scs sessions require the sqlite database")
		}
		manager, err := session.NewSQLiteManager(ctx, a.sqlDB, ttl, 0)
		if err != nil {
			return nil, err
		}
		opener, err := session.NewSCSOpener(manager)
		if err != nil {
			return nil, err
		}
		return opener, nil
	default:
		signer, err := session.NewTokenSigner([]byte(a.cfg.Session.Secret), ttl)
		if err != nil {
			return nil, err
		}
		return signer, nil
	}
}

// facade returns the facade for driver, or the default facade.
func (a *app) facade(driver string) (*auth.Service, error) {
	return a.registry.Facade(driver)
}

// close releases resources in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return oops.With("component", "app").Wrap(errors.Join(errs...))
	}
	return nil
}
