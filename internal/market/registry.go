package market

import (
	"context"
	"fmt"
	"strings"
)

// ProfileInput is the NGO self-service profile form.
type ProfileInput struct {
	OrganizationName   string  `json:"organization_name"`
	RegistrationNumber string  `json:"registration_number"`
	Address            string  `json:"address"`
	Latitude           float64 `json:"latitude"`
	Longitude          float64 `json:"longitude"`
	Capacity           int     `json:"capacity"`
}

// Registry manages NGO profiles and their admin verification.
type Registry struct {
	store Store
	opts  options
}

// NewRegistry constructs the NGO registry.
func NewRegistry(store Store, opts ...Option) *Registry {
	return &Registry{store: store, opts: buildOptions(opts)}
}

// CreateProfile submits an NGO profile for verification.
func (s *Registry) CreateProfile(ctx context.Context, userID string, in ProfileInput) (NgoProfile, error) {
	org := strings.TrimSpace(in.OrganizationName)
	reg := strings.TrimSpace(in.RegistrationNumber)
	addr := strings.TrimSpace(in.Address)
	if org == "" || reg == "" || addr == "" {
		return NgoProfile{}, fmt.Errorf("%w: organization_name, registration_number and address are required", ErrValidation)
	}
	capacity := in.Capacity
	if capacity == 0 {
		capacity = defaultCapacity
	}
	if capacity < minCapacity {
		return NgoProfile{}, fmt.Errorf("%w: capacity must be at least %d", ErrValidation, minCapacity)
	}

	u, err := s.store.Users().Find(ctx, userID)
	if err != nil {
		return NgoProfile{}, err
	}
	if u.Role != RoleNGO {
		return NgoProfile{}, fmt.Errorf("%w: only ngo accounts can create a profile", ErrValidation)
	}

	p := &NgoProfile{
		UserID:             userID,
		OrganizationName:   org,
		RegistrationNumber: reg,
		Address:            addr,
		Latitude:           in.Latitude,
		Longitude:          in.Longitude,
		Capacity:           capacity,
		Rating:             defaultRating,
		CreatedAt:          s.opts.now().UTC(),
	}
	if err := s.store.NGOs().Create(ctx, p); err != nil {
		return NgoProfile{}, err
	}
	return *p, nil
}

// Profile loads a profile by id.
func (s *Registry) Profile(ctx context.Context, ngoID string) (NgoProfile, error) {
	p, err := s.store.NGOs().Find(ctx, ngoID)
	if err != nil {
		return NgoProfile{}, err
	}
	return *p, nil
}

// ProfileForUser loads the profile owned by an ngo user.
func (s *Registry) ProfileForUser(ctx context.Context, userID string) (NgoProfile, error) {
	p, err := s.store.NGOs().FindByUser(ctx, userID)
	if err != nil {
		return NgoProfile{}, err
	}
	return *p, nil
}

// Pending lists profiles awaiting verification, oldest first.
func (s *Registry) Pending(ctx context.Context) ([]NgoContact, error) {
	return s.store.NGOs().ListContacts(ctx, false)
}

// RequireVerified returns the profile only when an admin has verified it.
func (s *Registry) RequireVerified(ctx context.Context, ngoID string) (NgoProfile, error) {
	p, err := s.Profile(ctx, ngoID)
	if err != nil {
		return NgoProfile{}, err
	}
	if !p.Verified {
		return NgoProfile{}, ErrNotVerified
	}
	return p, nil
}

// Verify grants the verification flag.
func (s *Registry) Verify(ctx context.Context, ngoID string) (NgoProfile, error) {
	if err := s.store.NGOs().MarkVerified(ctx, ngoID); err != nil {
		return NgoProfile{}, err
	}
	contact, err := s.store.NGOs().Contact(ctx, ngoID)
	if err != nil {
		return NgoProfile{}, err
	}
	s.opts.notify(ctx, Notification{
		Kind:   NotifyNGOVerified,
		To:     []string{contact.Email},
		Fields: map[string]string{"organization": contact.OrganizationName},
	})
	return contact.NgoProfile, nil
}

// Reject deletes an unverified profile; the NGO has to submit a new one.
func (s *Registry) Reject(ctx context.Context, ngoID string) (NgoProfile, error) {
	contact, err := s.store.NGOs().Contact(ctx, ngoID)
	if err != nil {
		return NgoProfile{}, err
	}
	if err := s.store.NGOs().DeleteUnverified(ctx, ngoID); err != nil {
		return NgoProfile{}, err
	}
	s.opts.notify(ctx, Notification{
		Kind:   NotifyNGORejected,
		To:     []string{contact.Email},
		Fields: map[string]string{"organization": contact.OrganizationName},
	})
	return contact.NgoProfile, nil
}
