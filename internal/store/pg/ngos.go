package pg

import (
	"context"
	"database/sql"
	"errors"

	"foodbridge.org/internal/ids"
	"foodbridge.org/internal/market"
)

const ngoColumns = `n.id, n.user_id, n.organization_name, n.registration_number, n.address,
	n.latitude, n.longitude, n.verified, n.capacity, n.total_pickups, n.rating, n.created_at`

type ngos struct{ db *sql.DB }

func scanNGO(row rowScanner, extra ...any) (*market.NgoProfile, error) {
	var p market.NgoProfile
	dest := []any{&p.ID, &p.UserID, &p.OrganizationName, &p.RegistrationNumber, &p.Address,
		&p.Latitude, &p.Longitude, &p.Verified, &p.Capacity, &p.TotalPickups, &p.Rating, &p.CreatedAt}
	err := row.Scan(append(dest, extra...)...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

func scanContact(row rowScanner) (*market.NgoContact, error) {
	var c market.NgoContact
	p, err := scanNGO(row, &c.Email, &c.Phone, &c.FullName)
	if err != nil {
		return nil, err
	}
	c.NgoProfile = *p
	return &c, nil
}

func (s ngos) Create(ctx context.Context, p *market.NgoProfile) error {
	if p.ID == "" {
		p.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into ngo_profiles(id, user_id, organization_name, registration_number, address,
			latitude, longitude, verified, capacity, total_pickups, rating, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, p.ID, p.UserID, p.OrganizationName, p.RegistrationNumber, p.Address,
		p.Latitude, p.Longitude, p.Verified, p.Capacity, p.TotalPickups, p.Rating, p.CreatedAt)
	switch {
	case isUniqueViolation(err, ""):
		return market.ErrDuplicateRegistration
	case isForeignKeyViolation(err):
		return market.ErrNotFound
	}
	return err
}

func (s ngos) Find(ctx context.Context, id string) (*market.NgoProfile, error) {
	return scanNGO(s.db.QueryRowContext(ctx, `select `+ngoColumns+` from ngo_profiles n where n.id=$1`, id))
}

func (s ngos) FindByUser(ctx context.Context, userID string) (*market.NgoProfile, error) {
	return scanNGO(s.db.QueryRowContext(ctx, `select `+ngoColumns+` from ngo_profiles n where n.user_id=$1`, userID))
}

const contactQuery = `select ` + ngoColumns + `, u.email, u.phone, u.full_name
	from ngo_profiles n join users u on u.id = n.user_id`

func (s ngos) Contact(ctx context.Context, id string) (*market.NgoContact, error) {
	return scanContact(s.db.QueryRowContext(ctx, contactQuery+` where n.id=$1`, id))
}

func (s ngos) ListContacts(ctx context.Context, verified bool) ([]market.NgoContact, error) {
	rows, err := s.db.QueryContext(ctx, contactQuery+` where n.verified=$1 order by n.created_at asc, n.id asc`, verified)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.NgoContact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s ngos) MarkVerified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update ngo_profiles set verified=true where id=$1 and not verified`, id)
	if err != nil {
		return err
	}
	return s.explainMiss(ctx, res, id)
}

func (s ngos) DeleteUnverified(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from ngo_profiles where id=$1 and not verified`, id)
	if err != nil {
		return err
	}
	return s.explainMiss(ctx, res, id)
}

// explainMiss distinguishes a missing profile from one that is already verified.
func (s ngos) explainMiss(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `select exists(select 1 from ngo_profiles where id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return market.ErrNotFound
	}
	return market.ErrInvalidTransition
}
