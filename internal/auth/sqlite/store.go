// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package sqlite implements the auth directory and attempt stores on SQLite
// through gorm.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/samber/oops"
	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store implements auth.DirectoryStore and auth.AttemptStore.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema. SQLite admits one writer at a time, so the pool is limited to a
// single connection and transactions are serialized.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(gormsqlite.Open(dsn(path)), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("path", path).Wrap(err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, oops.Code("DB_OPEN_FAILED").With("path", path).Wrap(err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.SetupJoinTable(&userRecord{}, "Groups", &memberRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, oops.Code("DB_MIGRATE_FAILED").Wrap(err)
	}
	if err := db.AutoMigrate(&userRecord{}, &metaRecord{}, &groupRecord{}, &memberRecord{}, &attemptRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, oops.Code("DB_MIGRATE_FAILED").Wrap(err)
	}
	return &Store{db: db}, nil
}

func dsn(path string) string {
	if strings.Contains(path, "?") {
		return path + "&_foreign_keys=on"
	}
	return path + "?_foreign_keys=on"
}

// DB returns the underlying connection pool.
func (s *Store) DB() (*sql.DB, error) {
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, oops.Wrap(err)
	}
	return sqlDB, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return oops.Code("DB_PING_FAILED").Wrap(err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	sqlDB, err := s.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return oops.Wrap(err)
	}
	return nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
