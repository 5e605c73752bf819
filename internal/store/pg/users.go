package pg

import (
	"context"
	"database/sql"
	"errors"

	"foodbridge.org/internal/ids"
	"foodbridge.org/internal/market"
)

const userColumns = `id, email, password_hash, full_name, phone, role, status, verified,
	total_donations, streak_days, last_donation_date, created_at`

type users struct{ db *sql.DB }

func scanUser(row rowScanner) (*market.User, error) {
	var u market.User
	var last sql.NullTime
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Phone, &u.Role, &u.Status, &u.Verified,
		&u.TotalDonations, &u.StreakDays, &last, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.LastDonationDate = timePtr(last)
	u.CreatedAt = u.CreatedAt.UTC()
	return &u, nil
}

func (s users) Create(ctx context.Context, u *market.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, password_hash, full_name, phone, role, status, verified, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, u.ID, u.Email, u.PasswordHash, u.FullName, u.Phone, string(u.Role), u.Status, u.Verified, u.CreatedAt)
	if isUniqueViolation(err, "users_email_key") {
		return market.ErrDuplicateEmail
	}
	return err
}

func (s users) Find(ctx context.Context, id string) (*market.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id))
}

func (s users) FindByEmail(ctx context.Context, email string) (*market.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email))
}

func (s users) List(ctx context.Context, role market.Role) ([]market.User, error) {
	query := `select ` + userColumns + ` from users`
	var args []any
	if role != "" {
		query += ` where role=$1`
		args = append(args, string(role))
	}
	query += ` order by created_at desc, id desc`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []market.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}
