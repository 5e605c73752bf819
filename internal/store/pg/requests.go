package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"foodbridge.org/internal/ids"
	"foodbridge.org/internal/market"
)

const requestColumns = `r.id, r.donation_id, r.ngo_id, r.status, r.message, r.requested_at,
	r.accepted_at, r.collected_at, r.feedback, r.rating`

type requests struct{ db *sql.DB }

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanRequest(row rowScanner, extra ...any) (*market.Request, error) {
	var r market.Request
	var accepted, collected sql.NullTime
	var rating sql.NullInt64
	dest := []any{&r.ID, &r.DonationID, &r.NgoID, &r.Status, &r.Message, &r.RequestedAt,
		&accepted, &collected, &r.Feedback, &rating}
	err := row.Scan(append(dest, extra...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.RequestedAt = r.RequestedAt.UTC()
	r.AcceptedAt = timePtr(accepted)
	r.CollectedAt = timePtr(collected)
	if rating.Valid {
		v := int(rating.Int64)
		r.Rating = &v
	}
	return &r, nil
}

func findRequest(ctx context.Context, q queryRower, id string) (*market.Request, error) {
	return scanRequest(q.QueryRowContext(ctx, `select `+requestColumns+` from requests r where r.id=$1`, id))
}

// lockedPair is a request and its donation read under row locks.
type lockedPair struct {
	requestStatus  market.RequestStatus
	ngoID          string
	donationID     string
	donationStatus market.DonationStatus
	donorID        string
}

func lockPair(ctx context.Context, tx *sql.Tx, requestID string) (lockedPair, error) {
	var p lockedPair
	err := tx.QueryRowContext(ctx, `
		select r.status, r.ngo_id, d.id, d.status, d.donor_id
		from requests r join donations d on d.id = r.donation_id
		where r.id=$1
		for update of r, d
	`, requestID).Scan(&p.requestStatus, &p.ngoID, &p.donationID, &p.donationStatus, &p.donorID)
	if errors.Is(err, sql.ErrNoRows) {
		return lockedPair{}, market.ErrNotFound
	}
	return p, err
}

func (s requests) Create(ctx context.Context, r *market.Request) error {
	if r.ID == "" {
		r.ID = ids.New()
	}
	if r.Status == "" {
		r.Status = market.RequestPending
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		var status market.DonationStatus
		err := tx.QueryRowContext(ctx, `select status from donations where id=$1 for update`, r.DonationID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return market.ErrNotFound
		}
		if err != nil {
			return err
		}
		if status != market.DonationPending {
			return market.ErrInvalidTransition
		}
		_, err = tx.ExecContext(ctx, `
			insert into requests(id, donation_id, ngo_id, status, message, requested_at)
			values ($1,$2,$3,$4,$5,$6)
		`, r.ID, r.DonationID, r.NgoID, string(r.Status), r.Message, r.RequestedAt)
		switch {
		case isUniqueViolation(err, "requests_donation_ngo_key"):
			return market.ErrInvalidTransition
		case isForeignKeyViolation(err):
			return market.ErrNotFound
		}
		return err
	})
}

func (s requests) Find(ctx context.Context, id string) (*market.Request, error) {
	return findRequest(ctx, s.db, id)
}

func (s requests) Accept(ctx context.Context, requestID, donorID string, at time.Time) (*market.Request, error) {
	var out *market.Request
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := lockPair(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if p.donorID != donorID {
			return market.ErrNotFound
		}
		if p.requestStatus != market.RequestPending || p.donationStatus != market.DonationPending {
			return market.ErrInvalidTransition
		}
		res, err := tx.ExecContext(ctx, `
			update requests set status='accepted', accepted_at=$2
			where id=$1 and status='pending'
		`, requestID, at)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `update donations set status='accepted' where id=$1 and status='pending'`, p.donationID)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		out, err = findRequest(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s requests) Reject(ctx context.Context, requestID, donorID string) (*market.Request, error) {
	var out *market.Request
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := lockPair(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if p.donorID != donorID {
			return market.ErrNotFound
		}
		if p.requestStatus != market.RequestPending {
			return market.ErrInvalidTransition
		}
		out, err = findRequest(ctx, tx, requestID)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `delete from requests where id=$1 and status='pending'`, requestID)
		if err != nil {
			return err
		}
		return expectOne(res)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s requests) Complete(ctx context.Context, requestID, ngoID string, fb market.Feedback, at time.Time) (*market.Request, error) {
	var rating sql.NullInt64
	if fb.Rating != nil {
		rating = sql.NullInt64{Int64: int64(*fb.Rating), Valid: true}
	}
	var out *market.Request
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := lockPair(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if p.ngoID != ngoID {
			return market.ErrNotFound
		}
		if p.requestStatus != market.RequestAccepted || p.donationStatus != market.DonationAccepted {
			return market.ErrInvalidTransition
		}
		res, err := tx.ExecContext(ctx, `
			update requests
			set status='completed', collected_at=$2,
				feedback = case when $3 <> '' then $3 else feedback end,
				rating = coalesce($4, rating)
			where id=$1 and status='accepted'
		`, requestID, at, fb.Text, rating)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `
			update donations set status='completed', collected_at=$2
			where id=$1 and status='accepted'
		`, p.donationID, at)
		if err != nil {
			return err
		}
		if err := expectOne(res); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `update ngo_profiles set total_pickups = total_pickups + 1 where id=$1`, ngoID); err != nil {
			return err
		}
		out, err = findRequest(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s requests) ListByDonation(ctx context.Context, donationID string) ([]market.DonorRequestView, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+requestColumns+`, n.organization_name, u.email, u.phone
		from requests r
		join ngo_profiles n on n.id = r.ngo_id
		join users u on u.id = n.user_id
		where r.donation_id=$1
		order by r.requested_at asc, r.id asc
	`, donationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.DonorRequestView
	for rows.Next() {
		var v market.DonorRequestView
		r, err := scanRequest(rows, &v.OrganizationName, &v.NgoEmail, &v.NgoPhone)
		if err != nil {
			return nil, err
		}
		v.Request = *r
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s requests) ListByNGO(ctx context.Context, ngoID string, status market.RequestStatus) ([]market.NgoRequestView, error) {
	query := `
		select ` + requestColumns + `, d.food_name, d.quantity, d.location, d.latitude, d.longitude,
			d.image_data, u.full_name, u.email, u.phone
		from requests r
		join donations d on d.id = r.donation_id
		join users u on u.id = d.donor_id
		where r.ngo_id=$1`
	args := []any{ngoID}
	if status != "" {
		query += ` and r.status=$2`
		args = append(args, string(status))
	}
	query += ` order by r.requested_at desc, r.id desc`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.NgoRequestView
	for rows.Next() {
		var v market.NgoRequestView
		r, err := scanRequest(rows, &v.FoodName, &v.Quantity, &v.Location, &v.Latitude, &v.Longitude,
			&v.ImageData, &v.DonorName, &v.DonorEmail, &v.DonorPhone)
		if err != nil {
			return nil, err
		}
		v.Request = *r
		out = append(out, v)
	}
	return out, rows.Err()
}
