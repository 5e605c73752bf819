package market

import (
	"context"
	"time"
)

// Store describes persistence operations required by the marketplace.
// Implementations must apply every multi-row mutation atomically and must
// check lifecycle preconditions as part of the same write.
type Store interface {
	Users() UserStore
	NGOs() NGOStore
	Donations() DonationStore
	Requests() RequestStore
	Stories() StoryStore
	Stats() StatsStore
}

// UserStore manages accounts.
type UserStore interface {
	// Create inserts u, assigning an ID when empty. Returns ErrDuplicateEmail on collision.
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// List returns users newest first; an empty role lists everyone.
	List(ctx context.Context, role Role) ([]User, error)
}

// NGOStore manages NGO profiles.
type NGOStore interface {
	// Create returns ErrDuplicateRegistration when the registration number or user already has a profile.
	Create(ctx context.Context, p *NgoProfile) error
	Find(ctx context.Context, id string) (*NgoProfile, error)
	FindByUser(ctx context.Context, userID string) (*NgoProfile, error)
	Contact(ctx context.Context, id string) (*NgoContact, error)
	// ListContacts returns profiles with the given verification flag, oldest first.
	ListContacts(ctx context.Context, verified bool) ([]NgoContact, error)
	// MarkVerified flips verified false -> true.
	MarkVerified(ctx context.Context, id string) error
	// DeleteUnverified removes a profile that has not been verified yet.
	DeleteUnverified(ctx context.Context, id string) error
}

// PendingQuery filters the pending-donation listing.
type PendingQuery struct {
	FoodType string
	// Search is matched case-sensitively against food name and description.
	Search string
	Limit  int
}

// DonationStore manages donations.
type DonationStore interface {
	// Create inserts d and, in the same transaction, bumps the donor's
	// total_donations and sets last_donation_date to postedOn.
	Create(ctx context.Context, d *Donation, postedOn time.Time) error
	Find(ctx context.Context, id string) (*Donation, error)
	// ListByDonor returns the donor's donations newest first; empty status lists all.
	ListByDonor(ctx context.Context, donorID string, status DonationStatus) ([]Donation, error)
	// ListPending returns pending donations newest first with donor contact.
	ListPending(ctx context.Context, q PendingQuery) ([]DonationListing, error)
	// ListRecent returns donations of every status newest first with donor contact.
	ListRecent(ctx context.Context, limit int) ([]DonationListing, error)
}

// Feedback is optionally left by an NGO when completing a pickup.
type Feedback struct {
	Text   string `json:"feedback"`
	Rating *int   `json:"rating"`
}

// RequestStore manages pickup requests and their guarded transitions.
type RequestStore interface {
	// Create inserts r when the donation exists, is pending and the NGO has
	// no other request on it.
	Create(ctx context.Context, r *Request) error
	Find(ctx context.Context, id string) (*Request, error)
	// Accept moves the request and its donation from pending to accepted.
	// donorID must own the donation.
	Accept(ctx context.Context, requestID, donorID string, at time.Time) (*Request, error)
	// Reject deletes a pending request on a donation owned by donorID.
	Reject(ctx context.Context, requestID, donorID string) (*Request, error)
	// Complete moves the request and donation from accepted to completed
	// and increments the NGO's pickup count.
	Complete(ctx context.Context, requestID, ngoID string, fb Feedback, at time.Time) (*Request, error)
	ListByDonation(ctx context.Context, donationID string) ([]DonorRequestView, error)
	// ListByNGO returns the NGO's requests newest first; empty status lists all.
	ListByNGO(ctx context.Context, ngoID string, status RequestStatus) ([]NgoRequestView, error)
}

// StoryStore reads success stories.
type StoryStore interface {
	Recent(ctx context.Context, limit int) ([]SuccessStory, error)
}

// StatusCounts groups lifecycle rows by status.
type StatusCounts struct {
	Total     int `json:"total"`
	Pending   int `json:"pending"`
	Accepted  int `json:"accepted"`
	Completed int `json:"completed"`
	Expired   int `json:"expired,omitempty"`
}

// UserCounts summarises the account base.
type UserCounts struct {
	Donors       int `json:"donors"`
	NGOs         int `json:"ngos"`
	VerifiedNGOs int `json:"verified_ngos"`
}

// DailyCount is the number of events on one UTC day (YYYY-MM-DD).
type DailyCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// LabelCount is a generic grouped count.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// LeaderEntry is a leaderboard row.
type LeaderEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// StatsStore runs read-only aggregations.
type StatsStore interface {
	// DonationCounts counts donations by status; empty donorID counts all.
	DonationCounts(ctx context.Context, donorID string) (StatusCounts, error)
	RequestCounts(ctx context.Context, ngoID string) (StatusCounts, error)
	// AverageRating returns false when the NGO has no rated requests.
	AverageRating(ctx context.Context, ngoID string) (float64, bool, error)
	UserCounts(ctx context.Context) (UserCounts, error)
	// DonationsPerDay groups donations created since the given time; empty donorID counts all.
	DonationsPerDay(ctx context.Context, donorID string, since time.Time) ([]DailyCount, error)
	RequestsPerDay(ctx context.Context, ngoID string, since time.Time) ([]DailyCount, error)
	// FoodTypeCounts groups donations by food type, largest first; empty donorID counts all.
	FoodTypeCounts(ctx context.Context, donorID string) ([]LabelCount, error)
	// TopDonors ranks donors by completed donations; ties keep arrival order.
	TopDonors(ctx context.Context, limit int) ([]LeaderEntry, error)
	// TopNGOs ranks verified NGOs by total pickups; ties keep arrival order.
	TopNGOs(ctx context.Context, limit int) ([]LeaderEntry, error)
}
