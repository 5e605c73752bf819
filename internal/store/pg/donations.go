package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"foodbridge.org/internal/ids"
	"foodbridge.org/internal/market"
)

const donationColumns = `d.id, d.donor_id, d.food_name, d.quantity, d.food_type, d.description, d.location,
	d.latitude, d.longitude, d.expiry_time, d.image_data, d.pickup_token, d.status, d.created_at,
	d.collected_at, d.view_count`

type donations struct{ db *sql.DB }

func scanDonation(row rowScanner, extra ...any) (*market.Donation, error) {
	var d market.Donation
	var collected sql.NullTime
	dest := []any{&d.ID, &d.DonorID, &d.FoodName, &d.Quantity, &d.FoodType, &d.Description, &d.Location,
		&d.Latitude, &d.Longitude, &d.ExpiryTime, &d.ImageData, &d.PickupToken, &d.Status, &d.CreatedAt,
		&collected, &d.ViewCount}
	err := row.Scan(append(dest, extra...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	d.ExpiryTime = d.ExpiryTime.UTC()
	d.CreatedAt = d.CreatedAt.UTC()
	d.CollectedAt = timePtr(collected)
	return &d, nil
}

func (s donations) Create(ctx context.Context, d *market.Donation, postedOn time.Time) error {
	if d.ID == "" {
		d.ID = ids.New()
	}
	if d.Status == "" {
		d.Status = market.DonationPending
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			insert into donations(id, donor_id, food_name, quantity, food_type, description, location,
				latitude, longitude, expiry_time, image_data, pickup_token, status, created_at)
			values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		`, d.ID, d.DonorID, d.FoodName, d.Quantity, d.FoodType, d.Description, d.Location,
			d.Latitude, d.Longitude, d.ExpiryTime, d.ImageData, d.PickupToken, string(d.Status), d.CreatedAt)
		if isForeignKeyViolation(err) {
			return market.ErrNotFound
		}
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `
			update users set total_donations = total_donations + 1, last_donation_date = $2
			where id=$1
		`, d.DonorID, postedOn.UTC().Format(time.DateOnly))
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n != 1 {
			return market.ErrNotFound
		}
		return nil
	})
}

func (s donations) Find(ctx context.Context, id string) (*market.Donation, error) {
	return scanDonation(s.db.QueryRowContext(ctx, `select `+donationColumns+` from donations d where d.id=$1`, id))
}

func (s donations) ListByDonor(ctx context.Context, donorID string, status market.DonationStatus) ([]market.Donation, error) {
	query := `select ` + donationColumns + ` from donations d where d.donor_id=$1`
	args := []any{donorID}
	if status != "" {
		query += ` and d.status=$2`
		args = append(args, string(status))
	}
	query += ` order by d.created_at desc, d.id desc`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s donations) ListPending(ctx context.Context, q market.PendingQuery) ([]market.DonationListing, error) {
	var b strings.Builder
	b.WriteString(`select ` + donationColumns + `, u.full_name, u.email, u.phone
		from donations d join users u on u.id = d.donor_id
		where d.status='pending'`)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if q.FoodType != "" {
		b.WriteString(` and d.food_type=` + arg(q.FoodType))
	}
	if q.Search != "" {
		p := arg("%" + likeEscaper.Replace(q.Search) + "%")
		b.WriteString(` and (d.food_name like ` + p + ` or d.description like ` + p + `)`)
	}
	b.WriteString(` order by d.created_at desc, d.id desc`)
	if q.Limit > 0 {
		b.WriteString(` limit ` + arg(q.Limit))
	}

	return s.listings(ctx, b.String(), args...)
}

func (s donations) ListRecent(ctx context.Context, limit int) ([]market.DonationListing, error) {
	query := `select ` + donationColumns + `, u.full_name, u.email, u.phone
		from donations d join users u on u.id = d.donor_id
		order by d.created_at desc, d.id desc`
	var args []any
	if limit > 0 {
		query += ` limit $1`
		args = append(args, limit)
	}
	return s.listings(ctx, query, args...)
}

func (s donations) listings(ctx context.Context, query string, args ...any) ([]market.DonationListing, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.DonationListing
	for rows.Next() {
		var l market.DonationListing
		d, err := scanDonation(rows, &l.DonorName, &l.DonorEmail, &l.DonorPhone)
		if err != nil {
			return nil, err
		}
		l.Donation = *d
		out = append(out, l)
	}
	return out, rows.Err()
}
