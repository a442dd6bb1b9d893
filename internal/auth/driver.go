// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"

	"github.com/holomush/ethanol/pkg/errutil"
)

// DefaultDriverName is the name of the built-in database-backed driver.
const DefaultDriverName = "database"

// Credentials carry the secret a caller presents at login.
type Credentials struct {
	Secret string
}

// LogValue redacts the secret.
func (Credentials) LogValue() slog.Value {
	return slog.StringValue("[REDACTED]")
}

// NewUser is the input to Driver.CreateUser.
type NewUser struct {
	Username string
	Password string
	Meta     UserMeta
}

// LogValue redacts the password.
func (n NewUser) LogValue() slog.Value {
	return slog.GroupValue(slog.String("username", n.Username))
}

// Activation identifies a pending account and the key that unlocks it.
type Activation struct {
	Email string
	Key   string
}

// LogValue redacts the key.
func (a Activation) LogValue() slog.Value {
	return slog.GroupValue(slog.String("email", a.Email))
}

// Driver is one authentication backend.
//
// UserExists and ValidateUser return (false, nil) and (nil, nil) respectively
// when the driver does not know the user or the credentials do not match.
// Errors are reserved for infrastructure failures.
type Driver interface {
	Name() string
	UserExists(ctx context.Context, email string) (bool, error)
	ValidateUser(ctx context.Context, email string, creds Credentials) (*User, error)
	CreateUser(ctx context.Context, email string, data NewUser) (*User, error)
	ActivateUser(ctx context.Context, activation Activation) (bool, error)
}

// DriverSet is the ordered collection of registered drivers. Registration
// order is the order in which drivers are consulted at login.
type DriverSet struct {
	order  []Driver
	byName map[string]Driver
	logger *slog.Logger
}

// NewDriverSet registers drivers in the given order. Names must be unique.
func NewDriverSet(logger *slog.Logger, drivers ...Driver) (*DriverSet, error) {
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	if len(drivers) == 0 {
		return nil, oops.Code("NO_DRIVERS").Errorf("at least one auth driver is required")
	}
	set := &DriverSet{
		order:  make([]Driver, 0, len(drivers)),
		byName: make(map[string]Driver, len(drivers)),
		logger: logger,
	}
	for _, d := range drivers {
		if d == nil {
			return nil, oops.Code("NO_DRIVERS").Errorf("nil auth driver")
		}
		if _, dup := set.byName[d.Name()]; dup {
			return nil, oops.Code("DUPLICATE_DRIVER").
				With("driver", d.Name()).
				Errorf("auth driver %q registered twice", d.Name())
		}
		set.order = append(set.order, d)
		set.byName[d.Name()] = d
	}
	return set, nil
}

// Get returns the driver registered under name.
func (s *DriverSet) Get(name string) (Driver, bool) {
	d, ok := s.byName[name]
	return d, ok
}

// Names returns driver names in registration order.
func (s *DriverSet) Names() []string {
	names := make([]string, 0, len(s.order))
	for _, d := range s.order {
		names = append(names, d.Name())
	}
	return names
}

// Claiming returns, in registration order, the names of drivers that report
// the user as existing. A driver that fails is logged and treated as not
// claiming the user.
func (s *DriverSet) Claiming(ctx context.Context, email string) []string {
	var claiming []string
	for _, d := range s.order {
		exists, err := d.UserExists(ctx, email)
		if err != nil {
			errutil.LogError(s.logger, "auth driver existence check failed",
				oops.With("driver", d.Name()).Wrap(err))
			continue
		}
		if exists {
			claiming = append(claiming, d.Name())
		}
	}
	return claiming
}

// Validate tries the candidate drivers in the order given and returns the
// first validated user together with the name of the driver that accepted
// it. Drivers after the first match are not consulted.
func (s *DriverSet) Validate(ctx context.Context, email string, creds Credentials, candidates []string) (*User, string) {
	for _, name := range candidates {
		d, ok := s.byName[name]
		if !ok {
			continue
		}
		user, err := d.ValidateUser(ctx, email, creds)
		if err != nil {
			errutil.LogError(s.logger, "auth driver validation failed",
				oops.With("driver", name).Wrap(err))
			continue
		}
		if user != nil {
			return user, name
		}
	}
	return nil, ""
}
