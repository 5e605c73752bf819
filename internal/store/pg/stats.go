package pg

import (
	"context"
	"database/sql"
	"time"

	"foodbridge.org/internal/market"
)

type stories struct{ db *sql.DB }

func (s stories) Recent(ctx context.Context, limit int) ([]market.SuccessStory, error) {
	rows, err := s.db.QueryContext(ctx, `
		select st.id, coalesce(st.donation_id, ''), st.ngo_id, n.organization_name, st.title, st.story,
			st.impact_meals, st.featured, st.created_at
		from success_stories st
		join ngo_profiles n on n.id = st.ngo_id
		order by st.created_at desc, st.id desc
		limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.SuccessStory
	for rows.Next() {
		var st market.SuccessStory
		if err := rows.Scan(&st.ID, &st.DonationID, &st.NgoID, &st.OrganizationName, &st.Title, &st.Story,
			&st.ImpactMeals, &st.Featured, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.CreatedAt = st.CreatedAt.UTC()
		out = append(out, st)
	}
	return out, rows.Err()
}

type stats struct{ db *sql.DB }

func (s stats) statusCounts(ctx context.Context, query string, args ...any) (market.StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return market.StatusCounts{}, err
	}
	defer rows.Close()
	var c market.StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return market.StatusCounts{}, err
		}
		c.Total += n
		switch status {
		case "pending":
			c.Pending = n
		case "accepted":
			c.Accepted = n
		case "completed":
			c.Completed = n
		case "expired":
			c.Expired = n
		}
	}
	return c, rows.Err()
}

func (s stats) DonationCounts(ctx context.Context, donorID string) (market.StatusCounts, error) {
	if donorID == "" {
		return s.statusCounts(ctx, `select status, count(*) from donations group by status`)
	}
	return s.statusCounts(ctx, `select status, count(*) from donations where donor_id=$1 group by status`, donorID)
}

func (s stats) RequestCounts(ctx context.Context, ngoID string) (market.StatusCounts, error) {
	return s.statusCounts(ctx, `select status, count(*) from requests where ngo_id=$1 group by status`, ngoID)
}

func (s stats) AverageRating(ctx context.Context, ngoID string) (float64, bool, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		select avg(rating)::float8 from requests where ngo_id=$1 and rating is not null
	`, ngoID).Scan(&avg)
	if err != nil {
		return 0, false, err
	}
	return avg.Float64, avg.Valid, nil
}

func (s stats) UserCounts(ctx context.Context) (market.UserCounts, error) {
	var c market.UserCounts
	err := s.db.QueryRowContext(ctx, `
		select
			(select count(*) from users where role='donor'),
			(select count(*) from users where role='ngo'),
			(select count(*) from ngo_profiles where verified)
	`).Scan(&c.Donors, &c.NGOs, &c.VerifiedNGOs)
	return c, err
}

func (s stats) daily(ctx context.Context, query string, args ...any) ([]market.DailyCount, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.DailyCount
	for rows.Next() {
		var dc market.DailyCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (s stats) DonationsPerDay(ctx context.Context, donorID string, since time.Time) ([]market.DailyCount, error) {
	query := `
		select to_char(created_at at time zone 'UTC', 'YYYY-MM-DD') as day, count(*)
		from donations where created_at >= $1`
	args := []any{since}
	if donorID != "" {
		query += ` and donor_id=$2`
		args = append(args, donorID)
	}
	query += ` group by day order by day`
	return s.daily(ctx, query, args...)
}

func (s stats) RequestsPerDay(ctx context.Context, ngoID string, since time.Time) ([]market.DailyCount, error) {
	return s.daily(ctx, `
		select to_char(requested_at at time zone 'UTC', 'YYYY-MM-DD') as day, count(*)
		from requests where requested_at >= $1 and ngo_id=$2
		group by day order by day
	`, since, ngoID)
}

func (s stats) FoodTypeCounts(ctx context.Context, donorID string) ([]market.LabelCount, error) {
	query := `select food_type, count(*) from donations`
	var args []any
	if donorID != "" {
		query += ` where donor_id=$1`
		args = append(args, donorID)
	}
	query += ` group by food_type order by count(*) desc, min(created_at) asc`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.LabelCount
	for rows.Next() {
		var lc market.LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

func (s stats) leaders(ctx context.Context, query string, limit int) ([]market.LeaderEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.LeaderEntry
	for rows.Next() {
		var e market.LeaderEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Count); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s stats) TopDonors(ctx context.Context, limit int) ([]market.LeaderEntry, error) {
	return s.leaders(ctx, `
		select u.id, u.full_name, count(*) as donations
		from donations d join users u on u.id = d.donor_id
		where d.status='completed'
		group by u.id, u.full_name, u.created_at
		order by donations desc, u.created_at asc, u.id asc
		limit $1
	`, limit)
}

func (s stats) TopNGOs(ctx context.Context, limit int) ([]market.LeaderEntry, error) {
	return s.leaders(ctx, `
		select id, organization_name, total_pickups
		from ngo_profiles
		where verified
		order by total_pickups desc, created_at asc, id asc
		limit $1
	`, limit)
}
