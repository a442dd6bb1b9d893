// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/ethanol/pkg/errutil"
)

var tracer = otel.Tracer("ethanol/auth")

// Inputs of the decoy digest verified when no driver claims an email, so
// unknown and known accounts cost the same hash work.
//
//nolint:gosec // G101: not a credential; never matches any login.
const (
	decoySecret = "ethanol-decoy-secret"
	decoySalt   = "ethanol-decoy-salt"
)

// LoginResult is the outcome of one credential check.
type LoginResult struct {
	Status AttemptStatus
	User   *User  // nil unless Status is AttemptGood
	Driver string // name of the driver that accepted the credentials
}

// OK reports whether the credentials were accepted.
func (r LoginResult) OK() bool {
	return r.Status == AttemptGood && r.User != nil
}

// PasswordChanger is implemented by drivers that own a local password.
type PasswordChanger interface {
	ChangePassword(ctx context.Context, user *User, current, next Credentials) error
}

// Service is the facade applications call. It is bound to one active driver,
// used for provisioning and activation, and consults every registered driver
// at login.
type Service struct {
	active   Driver
	drivers  *DriverSet
	dir      *Directory
	hasher   CredentialHasher
	decoy    string
	sessions *SessionResolver
	auditor  Auditor
	perms    *PermissionChecker
	logger   *slog.Logger
}

// NewService creates a Service. The active driver must be registered in
// drivers. hasher should be the one the local driver uses.
func NewService(active Driver, drivers *DriverSet, dir *Directory, hasher CredentialHasher, auditor Auditor, perms *PermissionChecker, logger *slog.Logger) (*Service, error) {
	if active == nil {
		return nil, oops.Errorf("active driver is required")
	}
	if drivers == nil {
		return nil, oops.Errorf("driver set is required")
	}
	if _, ok := drivers.Get(active.Name()); !ok {
		return nil, oops.Code("DRIVER_NOT_REGISTERED").
			With("driver", active.Name()).
			Errorf("auth driver %q is not registered", active.Name())
	}
	if dir == nil {
		return nil, oops.Errorf("directory is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("hasher is required")
	}
	if auditor == nil {
		return nil, oops.Errorf("auditor is required")
	}
	if perms == nil {
		return nil, oops.Errorf("permission checker is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	sessions, err := NewSessionResolver(dir, logger)
	if err != nil {
		return nil, err
	}
	decoy, err := hasher.Hash(decoySecret, decoySalt)
	if err != nil {
		return nil, oops.With("operation", "build decoy digest").Wrap(err)
	}
	return &Service{
		active:   active,
		drivers:  drivers,
		dir:      dir,
		hasher:   hasher,
		decoy:    decoy,
		sessions: sessions,
		auditor:  auditor,
		perms:    perms,
		logger:   logger.With("auth_driver", active.Name()),
	}, nil
}

// DriverName returns the name of the active driver.
func (s *Service) DriverName() string {
	return s.active.Name()
}

// Directory returns the directory manager.
func (s *Service) Directory() *Directory {
	return s.dir
}

// Authenticate checks credentials against every driver that claims email and
// records exactly one login attempt before returning. It never touches a
// session.
func (s *Service) Authenticate(ctx context.Context, email string, creds Credentials) LoginResult {
	email = NormalizeEmail(email)
	ctx, span := tracer.Start(ctx, "auth.Authenticate")
	defer span.End()

	result := s.check(ctx, email, creds)
	span.SetAttributes(
		attribute.String("auth.status", string(result.Status)),
		attribute.String("auth.driver", result.Driver),
	)

	attempt := NewLoginAttempt(email, result.Status, result.Driver)
	if err := s.auditor.Record(ctx, attempt); err != nil {
		span.RecordError(err)
		errutil.LogError(s.logger, "login attempt not recorded",
			oops.With("attempt_id", attempt.ID.String()).With("status", string(attempt.Status)).Wrap(err))
	}
	return result
}

func (s *Service) check(ctx context.Context, email string, creds Credentials) LoginResult {
	claiming := s.drivers.Claiming(ctx, email)
	if len(claiming) == 0 {
		// Result ignored: the decoy never matches.
		_, _ = s.hasher.Verify(creds.Secret, decoySalt, s.decoy)
		return LoginResult{Status: AttemptNoSuchUser}
	}
	user, driver := s.drivers.Validate(ctx, email, creds, claiming)
	if user == nil {
		return LoginResult{Status: AttemptBadCredentials}
	}
	return LoginResult{Status: AttemptGood, User: user, Driver: driver}
}

// LogIn authenticates and, on success only, stores the user in sess. Unknown
// emails and bad credentials fail identically with ErrLogInFailed.
func (s *Service) LogIn(ctx context.Context, sess SessionStore, email string, creds Credentials) (user *User, err error) {
	ctx, span := tracer.Start(ctx, "auth.LogIn")
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	result := s.Authenticate(ctx, email, creds)
	if !result.OK() {
		return nil, logInFailed()
	}
	if err := s.sessions.Remember(ctx, sess, result.User); err != nil {
		return nil, err
	}
	s.logger.Info("user logged in", "user_id", result.User.ID, "via", result.Driver)
	return result.User, nil
}

// LogOut clears the session slot.
func (s *Service) LogOut(ctx context.Context, sess SessionStore) error {
	return s.sessions.LogOut(ctx, sess)
}

// CurrentUser returns the user held by sess, or the guest user.
func (s *Service) CurrentUser(ctx context.Context, sess SessionStore) (*User, error) {
	return s.sessions.CurrentUser(ctx, sess)
}

// LoggedIn reports whether sess holds a non-guest user.
func (s *Service) LoggedIn(ctx context.Context, sess SessionStore) (bool, error) {
	return s.sessions.LoggedIn(ctx, sess)
}

// UserExists reports whether any registered driver recognizes email.
func (s *Service) UserExists(ctx context.Context, email string) bool {
	return len(s.drivers.Claiming(ctx, NormalizeEmail(email))) > 0
}

// CreateUser provisions an account through the active driver.
func (s *Service) CreateUser(ctx context.Context, email string, data NewUser) (*User, error) {
	ctx, span := tracer.Start(ctx, "auth.CreateUser",
		trace.WithAttributes(attribute.String("auth.driver", s.active.Name())))
	defer span.End()

	user, err := s.active.CreateUser(ctx, NormalizeEmail(email), data)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	s.logger.Info("user created", "user_id", user.ID, "pending_activation", user.PendingActivation())
	return user, nil
}

// Activate redeems an activation through the active driver.
func (s *Service) Activate(ctx context.Context, activation Activation) (bool, error) {
	activation.Email = NormalizeEmail(activation.Email)
	return s.active.ActivateUser(ctx, activation)
}

// ChangePassword replaces the local password of user. The active driver must
// own local passwords.
func (s *Service) ChangePassword(ctx context.Context, user *User, current, next Credentials) error {
	changer, ok := s.active.(PasswordChanger)
	if !ok {
		return oops.Code("DRIVER_READ_ONLY").
			With("driver", s.active.Name()).
			Errorf("auth driver %q cannot change passwords", s.active.Name())
	}
	return changer.ChangePassword(ctx, user, current, next)
}

// HasPermission reports whether any of user's groups grants permission.
func (s *Service) HasPermission(user *User, permission string) bool {
	return s.perms.Allowed(user, permission)
}

// GetUser returns the user with id.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.dir.GetUser(ctx, id)
}

// GetUsers returns every user ordered by ID.
func (s *Service) GetUsers(ctx context.Context) ([]*User, error) {
	return s.dir.GetUsers(ctx)
}

// SetUserGroups replaces user's memberships with user.Groups.
func (s *Service) SetUserGroups(ctx context.Context, user *User) (*User, error) {
	return s.dir.SetUserGroups(ctx, user)
}

// SetUserGroupsByID replaces the memberships of the user with id.
func (s *Service) SetUserGroupsByID(ctx context.Context, id int64, groupIDs []int64) (*User, error) {
	return s.dir.SetUserGroupsByID(ctx, id, groupIDs)
}

// GetGroup returns the group with id.
func (s *Service) GetGroup(ctx context.Context, id int64) (*UserGroup, error) {
	return s.dir.GetGroup(ctx, id)
}

// GroupList returns every group.
func (s *Service) GroupList(ctx context.Context) ([]*UserGroup, error) {
	return s.dir.GroupList(ctx)
}

// AddGroup creates a group.
func (s *Service) AddGroup(ctx context.Context, name string) (*UserGroup, error) {
	return s.dir.AddGroup(ctx, name)
}

// UpdateGroup renames the group with id.
func (s *Service) UpdateGroup(ctx context.Context, id int64, newName string) (*UserGroup, error) {
	group, err := s.dir.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	group.Name = newName
	if err := s.dir.UpdateGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// DeleteGroup removes the group with id and its memberships.
func (s *Service) DeleteGroup(ctx context.Context, id int64) error {
	return s.dir.DeleteGroup(ctx, id)
}

// SetGroupPermissions replaces the permission patterns of the group with id.
func (s *Service) SetGroupPermissions(ctx context.Context, id int64, permissions []string) (*UserGroup, error) {
	return s.dir.SetGroupPermissions(ctx, id, permissions)
}
