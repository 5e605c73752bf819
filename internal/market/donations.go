package market

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"foodbridge.org/internal/ids"
	"foodbridge.org/internal/obs"
)

// DonationInput is the donor's posting form.
type DonationInput struct {
	FoodName    string    `json:"food_name"`
	Quantity    string    `json:"quantity"`
	FoodType    string    `json:"food_type"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	ExpiryTime  time.Time `json:"expiry_time"`
	ImageData   string    `json:"image_data"`
}

// BrowseFilter narrows the NGO's view of pending donations.
type BrowseFilter struct {
	FoodType      string
	MaxDistanceKm float64
	Search        string
}

// Donations manages the donation side of the lifecycle.
type Donations struct {
	store    Store
	registry *Registry
	opts     options
}

// NewDonations constructs the donation manager.
func NewDonations(store Store, registry *Registry, opts ...Option) *Donations {
	return &Donations{store: store, registry: registry, opts: buildOptions(opts)}
}

// Create posts a donation. The donor's counters move at posting time, not at
// completion.
func (s *Donations) Create(ctx context.Context, donorID string, in DonationInput) (Donation, error) {
	name := strings.TrimSpace(in.FoodName)
	qty := strings.TrimSpace(in.Quantity)
	loc := strings.TrimSpace(in.Location)
	if name == "" || qty == "" || loc == "" {
		return Donation{}, fmt.Errorf("%w: food_name, quantity and location are required", ErrValidation)
	}
	if in.ExpiryTime.IsZero() {
		return Donation{}, fmt.Errorf("%w: expiry_time is required", ErrValidation)
	}
	foodType := strings.TrimSpace(in.FoodType)
	if foodType != "" && !slices.Contains(FoodTypes, foodType) {
		return Donation{}, fmt.Errorf("%w: unknown food_type %q", ErrValidation, foodType)
	}

	donor, err := s.store.Users().Find(ctx, donorID)
	if err != nil {
		return Donation{}, err
	}
	if donor.Role != RoleDonor {
		return Donation{}, fmt.Errorf("%w: only donors can post donations", ErrValidation)
	}

	now := s.opts.now().UTC()
	d := &Donation{
		DonorID:     donorID,
		FoodName:    name,
		Quantity:    qty,
		FoodType:    foodType,
		Description: strings.TrimSpace(in.Description),
		Location:    loc,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		ExpiryTime:  in.ExpiryTime.UTC(),
		ImageData:   in.ImageData,
		PickupToken: ids.PickupToken(donorID, now),
		Status:      DonationPending,
		CreatedAt:   now,
	}
	if err := s.store.Donations().Create(ctx, d, now); err != nil {
		return Donation{}, err
	}
	obs.DonationCreated()

	s.alertNearbyNGOs(ctx, *d)
	return *d, nil
}

func (s *Donations) alertNearbyNGOs(ctx context.Context, d Donation) {
	ngos, err := s.store.NGOs().ListContacts(ctx, true)
	if err != nil {
		obs.Error("list ngos for donation alert", err, map[string]any{"donation_id": d.ID})
		return
	}
	var to []string
	for _, n := range ngos {
		if DistanceKm(d.Latitude, d.Longitude, n.Latitude, n.Longitude) <= s.opts.notifyRadiusKm {
			to = append(to, n.Email)
		}
	}
	s.opts.notify(ctx, Notification{
		Kind: NotifyDonationPosted,
		To:   to,
		Fields: map[string]string{
			"donation_id": d.ID,
			"food_name":   d.FoodName,
			"quantity":    d.Quantity,
			"location":    d.Location,
			"expiry_time": d.ExpiryTime.Format(time.RFC3339),
		},
	})
}

// List returns the donor's donations newest first.
func (s *Donations) List(ctx context.Context, donorID string, status DonationStatus) ([]Donation, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.store.Donations().ListByDonor(ctx, donorID, status)
}

// Get loads a donation by id.
func (s *Donations) Get(ctx context.Context, id string) (Donation, error) {
	d, err := s.store.Donations().Find(ctx, id)
	if err != nil {
		return Donation{}, err
	}
	return *d, nil
}

// Browse lists pending donations for a verified NGO, newest first, with the
// flat-earth distance from the NGO's coordinate and the NGO's own request
// status on each.
func (s *Donations) Browse(ctx context.Context, ngoID string, f BrowseFilter) ([]DonationListing, error) {
	ngo, err := s.registry.RequireVerified(ctx, ngoID)
	if err != nil {
		return nil, err
	}
	rows, err := s.store.Donations().ListPending(ctx, PendingQuery{
		FoodType: strings.TrimSpace(f.FoodType),
		Search:   f.Search,
	})
	if err != nil {
		return nil, err
	}
	mine, err := s.store.Requests().ListByNGO(ctx, ngo.ID, "")
	if err != nil {
		return nil, err
	}
	requested := make(map[string]RequestStatus, len(mine))
	for _, r := range mine {
		requested[r.DonationID] = r.Status
	}
	out := make([]DonationListing, 0, len(rows))
	for _, row := range rows {
		row.DistanceKm = DistanceKm(row.Latitude, row.Longitude, ngo.Latitude, ngo.Longitude)
		row.PickupToken = ""
		row.MyRequestStatus = requested[row.ID]
		if f.MaxDistanceKm > 0 && row.DistanceKm > f.MaxDistanceKm {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// Requests lists the pickup requests on a donation owned by donorID.
func (s *Donations) Requests(ctx context.Context, donorID, donationID string) ([]DonorRequestView, error) {
	d, err := s.store.Donations().Find(ctx, donationID)
	if err != nil {
		return nil, err
	}
	if d.DonorID != donorID {
		return nil, ErrNotFound
	}
	return s.store.Requests().ListByDonation(ctx, donationID)
}

// Feed returns the most recent pending donations without contact details.
func (s *Donations) Feed(ctx context.Context, limit int) ([]DonationListing, error) {
	if limit <= 0 || limit > 50 {
		limit = 5
	}
	rows, err := s.store.Donations().ListPending(ctx, PendingQuery{Limit: limit})
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].DonorEmail = ""
		rows[i].DonorPhone = ""
		rows[i].ImageData = ""
		rows[i].PickupToken = ""
	}
	return rows, nil
}
