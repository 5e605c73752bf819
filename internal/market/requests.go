package market

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"foodbridge.org/internal/obs"
)

// Requests manages pickup requests: creation by NGOs, acceptance or
// rejection by donors and completion by the NGO.
type Requests struct {
	store    Store
	registry *Registry
	opts     options
}

// NewRequests constructs the request manager.
func NewRequests(store Store, registry *Registry, opts ...Option) *Requests {
	return &Requests{store: store, registry: registry, opts: buildOptions(opts)}
}

// Create files a pending request from a verified NGO on a pending donation.
func (s *Requests) Create(ctx context.Context, donationID, ngoID, message string) (Request, error) {
	ngo, err := s.registry.RequireVerified(ctx, ngoID)
	if err != nil {
		return Request{}, err
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = "Pickup request from " + ngo.OrganizationName
	}
	r := &Request{
		DonationID:  donationID,
		NgoID:       ngoID,
		Status:      RequestPending,
		Message:     message,
		RequestedAt: s.opts.now().UTC(),
	}
	if err := s.store.Requests().Create(ctx, r); err != nil {
		return Request{}, err
	}
	obs.RequestTransition("created")

	if d, donor, err := s.donationAndDonor(ctx, donationID); err != nil {
		obs.Error("load donor for request notification", err, map[string]any{"request_id": r.ID})
	} else {
		s.opts.notify(ctx, Notification{
			Kind: NotifyRequestCreated,
			To:   []string{donor.Email},
			Fields: map[string]string{
				"organization": ngo.OrganizationName,
				"food_name":    d.FoodName,
			},
		})
	}
	return *r, nil
}

// Accept is invoked by the donor. Competing pending requests on the same
// donation are left untouched.
func (s *Requests) Accept(ctx context.Context, donorID, requestID string) (Request, error) {
	r, err := s.store.Requests().Accept(ctx, requestID, donorID, s.opts.now().UTC())
	if err != nil {
		return Request{}, err
	}
	obs.RequestTransition("accepted")

	d, donor, err := s.donationAndDonor(ctx, r.DonationID)
	if err != nil {
		obs.Error("load donation for accept notification", err, map[string]any{"request_id": r.ID})
		return *r, nil
	}
	ngo, err := s.store.NGOs().Contact(ctx, r.NgoID)
	if err != nil {
		obs.Error("load ngo for accept notification", err, map[string]any{"request_id": r.ID})
		return *r, nil
	}
	s.opts.notify(ctx, Notification{
		Kind: NotifyRequestAccepted,
		To:   []string{ngo.Email},
		Fields: map[string]string{
			"food_name":   d.FoodName,
			"quantity":    d.Quantity,
			"location":    d.Location,
			"donor_name":  donor.FullName,
			"donor_email": donor.Email,
			"donor_phone": donor.Phone,
		},
	})
	return *r, nil
}

// Reject is invoked by the donor and removes a pending request.
func (s *Requests) Reject(ctx context.Context, donorID, requestID string) (Request, error) {
	r, err := s.store.Requests().Reject(ctx, requestID, donorID)
	if err != nil {
		return Request{}, err
	}
	obs.RequestTransition("rejected")
	return *r, nil
}

// Complete is invoked by the NGO once the food has been collected.
func (s *Requests) Complete(ctx context.Context, ngoID, requestID string, fb Feedback) (Request, error) {
	if fb.Rating != nil && (*fb.Rating < 1 || *fb.Rating > 5) {
		return Request{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	fb.Text = strings.TrimSpace(fb.Text)
	r, err := s.store.Requests().Complete(ctx, requestID, ngoID, fb, s.opts.now().UTC())
	if err != nil {
		return Request{}, err
	}
	obs.RequestTransition("completed")

	d, donor, err := s.donationAndDonor(ctx, r.DonationID)
	if err != nil {
		obs.Error("load donation for completion notification", err, map[string]any{"request_id": r.ID})
		return *r, nil
	}
	to := []string{donor.Email}
	fields := map[string]string{"donation_id": d.ID, "food_name": d.FoodName, "location": d.Location}
	if ngo, err := s.store.NGOs().Contact(ctx, r.NgoID); err == nil {
		to = append(to, ngo.Email)
		fields["organization"] = ngo.OrganizationName
	}
	s.opts.notify(ctx, Notification{Kind: NotifyRequestCompleted, To: to, Fields: fields})
	return *r, nil
}

// ListForNGO returns the NGO's requests newest first.
func (s *Requests) ListForNGO(ctx context.Context, ngoID string, status RequestStatus) ([]NgoRequestView, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	if _, err := s.registry.RequireVerified(ctx, ngoID); err != nil {
		return nil, err
	}
	return s.store.Requests().ListByNGO(ctx, ngoID, status)
}

// Get loads a request by id.
func (s *Requests) Get(ctx context.Context, id string) (Request, error) {
	r, err := s.store.Requests().Find(ctx, id)
	if err != nil {
		return Request{}, err
	}
	return *r, nil
}

func (s *Requests) donationAndDonor(ctx context.Context, donationID string) (*Donation, *User, error) {
	d, err := s.store.Donations().Find(ctx, donationID)
	if err != nil {
		return nil, nil, err
	}
	donor, err := s.store.Users().Find(ctx, d.DonorID)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("donor %s", d.DonorID), err)
	}
	return d, donor, nil
}
