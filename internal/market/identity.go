package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"foodbridge.org/internal/auth"
)

// RegisterInput is the self-service registration form.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Role     Role   `json:"role"`
}

// Identity manages accounts and credentials.
type Identity struct {
	store Store
	opts  options
}

// NewIdentity constructs the identity service.
func NewIdentity(store Store, opts ...Option) *Identity {
	return &Identity{store: store, opts: buildOptions(opts)}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates a donor or ngo account. The role is taken as declared;
// admin accounts can only be seeded.
func (s *Identity) Register(ctx context.Context, in RegisterInput) (User, error) {
	email := normalizeEmail(in.Email)
	name := strings.TrimSpace(in.FullName)
	switch {
	case email == "":
		return User{}, fmt.Errorf("%w: email is required", ErrValidation)
	case !strings.Contains(email, "@"):
		return User{}, fmt.Errorf("%w: email is malformed", ErrValidation)
	case in.Password == "":
		return User{}, fmt.Errorf("%w: password is required", ErrValidation)
	case name == "":
		return User{}, fmt.Errorf("%w: full_name is required", ErrValidation)
	case in.Role != RoleDonor && in.Role != RoleNGO:
		return User{}, fmt.Errorf("%w: role must be donor or ngo", ErrValidation)
	}

	u, err := s.create(ctx, email, in.Password, name, strings.TrimSpace(in.Phone), in.Role, false)
	if err != nil {
		return User{}, err
	}
	s.opts.notify(ctx, Notification{
		Kind: NotifyUserRegistered,
		To:   []string{u.Email},
		Fields: map[string]string{
			"name": u.FullName,
			"role": string(u.Role),
		},
	})
	return u, nil
}

func (s *Identity) create(ctx context.Context, email, password, name, phone string, role Role, verified bool) (User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	u := &User{
		Email:        email,
		PasswordHash: hash,
		FullName:     name,
		Phone:        phone,
		Role:         role,
		Status:       "active",
		Verified:     verified,
		CreatedAt:    s.opts.now().UTC(),
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		return User{}, err
	}
	return *u, nil
}

// Authenticate checks credentials and returns the account.
func (s *Identity) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, ErrInvalidCredentials
	}
	u, err := s.store.Users().FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, err
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		return User{}, ErrInvalidCredentials
	}
	return *u, nil
}

// EnsureAdmin seeds the administrator account unless it already exists.
// An email held by a donor or NGO account is reported as ErrDuplicateEmail.
func (s *Identity) EnsureAdmin(ctx context.Context, email, password, name string) (User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return User{}, fmt.Errorf("%w: admin email and password are required", ErrValidation)
	}
	existing, err := s.store.Users().FindByEmail(ctx, email)
	if err == nil {
		return adminAccount(existing)
	}
	if !errors.Is(err, ErrNotFound) {
		return User{}, err
	}
	if strings.TrimSpace(name) == "" {
		name = "System Admin"
	}
	u, err := s.create(ctx, email, password, name, "", RoleAdmin, true)
	if errors.Is(err, ErrDuplicateEmail) {
		// Seeded concurrently by another instance.
		existing, err := s.store.Users().FindByEmail(ctx, email)
		if err != nil {
			return User{}, err
		}
		return adminAccount(existing)
	}
	return u, err
}

func adminAccount(u *User) (User, error) {
	if u.Role != RoleAdmin {
		return User{}, fmt.Errorf("%w: %s is registered as %s", ErrDuplicateEmail, u.Email, u.Role)
	}
	return *u, nil
}

// User loads an account by id.
func (s *Identity) User(ctx context.Context, id string) (User, error) {
	u, err := s.store.Users().Find(ctx, id)
	if err != nil {
		return User{}, err
	}
	return *u, nil
}

// Users lists accounts newest first, optionally filtered by role.
func (s *Identity) Users(ctx context.Context, role Role) ([]User, error) {
	if role != "" && !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}
	return s.store.Users().List(ctx, role)
}

// Badges derives the user's badges from their donation counters.
func (s *Identity) Badges(ctx context.Context, userID string) ([]Badge, error) {
	u, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	return BadgesFor(u.TotalDonations, u.StreakDays), nil
}
