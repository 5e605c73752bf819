package market

import (
	"context"
	"time"
)

const (
	activityWindowDays = 30
	defaultLeaderLimit = 10
	defaultStoryLimit  = 3
	defaultRecentLimit = 15
)

// Impact is a status breakdown with derived meal and weight estimates.
type Impact struct {
	StatusCounts
	Meals         int     `json:"meals"`
	KgSaved       int     `json:"kg_saved"`
	AverageRating float64 `json:"average_rating,omitempty"`
}

func impactFrom(c StatusCounts) Impact {
	return Impact{
		StatusCounts: c,
		Meals:        c.Completed * MealsPerDonation,
		KgSaved:      c.Completed * KgPerDonation,
	}
}

// Overview is the system-wide summary shown to admins and on the home page.
type Overview struct {
	UserCounts
	Donations Impact `json:"donations"`
}

// Leaderboard ranks donors and verified NGOs.
type Leaderboard struct {
	Donors []LeaderEntry `json:"donors"`
	NGOs   []LeaderEntry `json:"ngos"`
}

// Stats derives counts, activity series and rankings. It never writes.
type Stats struct {
	store Store
	opts  options
}

// NewStats constructs the aggregator.
func NewStats(store Store, opts ...Option) *Stats {
	return &Stats{store: store, opts: buildOptions(opts)}
}

// DonorImpact summarises a donor's donations.
func (s *Stats) DonorImpact(ctx context.Context, donorID string) (Impact, error) {
	c, err := s.store.Stats().DonationCounts(ctx, donorID)
	if err != nil {
		return Impact{}, err
	}
	return impactFrom(c), nil
}

// NGOImpact summarises an NGO's requests, including its average feedback rating.
func (s *Stats) NGOImpact(ctx context.Context, ngoID string) (Impact, error) {
	c, err := s.store.Stats().RequestCounts(ctx, ngoID)
	if err != nil {
		return Impact{}, err
	}
	imp := impactFrom(c)
	avg, ok, err := s.store.Stats().AverageRating(ctx, ngoID)
	if err != nil {
		return Impact{}, err
	}
	if !ok {
		avg = defaultRating
	}
	imp.AverageRating = avg
	return imp, nil
}

// Overview summarises users and donations across the system.
func (s *Stats) Overview(ctx context.Context) (Overview, error) {
	users, err := s.store.Stats().UserCounts(ctx)
	if err != nil {
		return Overview{}, err
	}
	c, err := s.store.Stats().DonationCounts(ctx, "")
	if err != nil {
		return Overview{}, err
	}
	return Overview{UserCounts: users, Donations: impactFrom(c)}, nil
}

// StatusBreakdown counts every donation by status.
func (s *Stats) StatusBreakdown(ctx context.Context) (StatusCounts, error) {
	return s.store.Stats().DonationCounts(ctx, "")
}

// FoodTypes groups donations by food type; empty donorID covers everyone.
func (s *Stats) FoodTypes(ctx context.Context, donorID string) ([]LabelCount, error) {
	return s.store.Stats().FoodTypeCounts(ctx, donorID)
}

// DonorActivity is the donor's daily posting count over the trailing 30 days.
func (s *Stats) DonorActivity(ctx context.Context, donorID string) ([]DailyCount, error) {
	start := s.windowStart()
	rows, err := s.store.Stats().DonationsPerDay(ctx, donorID, start)
	if err != nil {
		return nil, err
	}
	return fillDays(start, activityWindowDays, rows), nil
}

// NGOActivity is the NGO's daily request count over the trailing 30 days.
func (s *Stats) NGOActivity(ctx context.Context, ngoID string) ([]DailyCount, error) {
	start := s.windowStart()
	rows, err := s.store.Stats().RequestsPerDay(ctx, ngoID, start)
	if err != nil {
		return nil, err
	}
	return fillDays(start, activityWindowDays, rows), nil
}

// SystemActivity is the daily donation count across all donors.
func (s *Stats) SystemActivity(ctx context.Context) ([]DailyCount, error) {
	return s.DonorActivity(ctx, "")
}

// Leaderboard returns the top donors and verified NGOs.
func (s *Stats) Leaderboard(ctx context.Context, limit int) (Leaderboard, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultLeaderLimit
	}
	donors, err := s.store.Stats().TopDonors(ctx, limit)
	if err != nil {
		return Leaderboard{}, err
	}
	ngos, err := s.store.Stats().TopNGOs(ctx, limit)
	if err != nil {
		return Leaderboard{}, err
	}
	return Leaderboard{Donors: nonNil(donors), NGOs: nonNil(ngos)}, nil
}

// RecentDonations lists the latest donations of any status with the donor's
// name and email. Pickup tokens and images are left out.
func (s *Stats) RecentDonations(ctx context.Context, limit int) ([]DonationListing, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultRecentLimit
	}
	rows, err := s.store.Donations().ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].PickupToken = ""
		rows[i].ImageData = ""
	}
	return rows, nil
}

// Stories returns the most recent success stories.
func (s *Stats) Stories(ctx context.Context, limit int) ([]SuccessStory, error) {
	if limit <= 0 || limit > 50 {
		limit = defaultStoryLimit
	}
	return s.store.Stories().Recent(ctx, limit)
}

// windowStart is midnight UTC of the first day in the activity window.
func (s *Stats) windowStart() time.Time {
	today := s.opts.now().UTC().Truncate(24 * time.Hour)
	return today.AddDate(0, 0, -(activityWindowDays - 1))
}

// fillDays expands sparse per-day counts into a dense series, oldest first.
func fillDays(start time.Time, days int, rows []DailyCount) []DailyCount {
	byDay := make(map[string]int, len(rows))
	for _, r := range rows {
		byDay[r.Day] += r.Count
	}
	out := make([]DailyCount, 0, days)
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, DailyCount{Day: day, Count: byDay[day]})
	}
	return out
}

func nonNil(in []LeaderEntry) []LeaderEntry {
	if in == nil {
		return []LeaderEntry{}
	}
	return in
}
