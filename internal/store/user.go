package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/model"
)

const userColumns = `id, first_name, last_name, email, password_hash, role, image_url,
	hourly_rate, rating, skills, is_available, created_at, updated_at`

type UserFilter struct {
	Role      *model.Role
	Available *bool
}

// UserPatch carries the fields of an update; nil fields are left unchanged.
type UserPatch struct {
	FirstName    *string
	LastName     *string
	Email        *string
	PasswordHash *string
	Role         *model.Role
	ImageURL     *string
	HourlyRate   *decimal.Decimal
	Rating       *float64
	Skills       []string
	IsAvailable  *bool
}

func scanUser(row pgx.Row) (*model.User, error) {
	u := &model.User{}
	var role string
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash, &role, &u.ImageURL,
		&u.HourlyRate, &u.Rating, &u.Skills, &u.IsAvailable, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	if u.Skills == nil {
		u.Skills = []string{}
	}
	return u, nil
}

func collectUsers(rows pgx.Rows) ([]*model.User, error) {
	defer rows.Close()
	var out []*model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CreateUser persists u. The credential must already be hashed; created_at
// and updated_at are filled from the row.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	const op = "store.CreateUser"
	if u.PasswordHash == "" {
		return apperr.Validation(op, "password hash required")
	}
	if u.Skills == nil {
		u.Skills = []string{}
	}
	err := s.db.QueryRow(ctx,
		`INSERT INTO users (id, first_name, last_name, email, password_hash, role, image_url,
		                    hourly_rate, rating, skills, is_available)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 RETURNING created_at, updated_at`,
		u.ID, u.FirstName, u.LastName, u.Email, u.PasswordHash, string(u.Role), u.ImageURL,
		u.HourlyRate, u.Rating, u.Skills, u.IsAvailable,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	return mapErr(op, "user", err)
}

func (s *Store) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("store.GetUser", "user", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, f UserFilter) ([]*model.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE TRUE`
	var args []any
	if f.Role != nil {
		args = append(args, string(*f.Role))
		q += fmt.Sprintf(` AND role = $%d`, len(args))
	}
	if f.Available != nil {
		args = append(args, *f.Available)
		q += fmt.Sprintf(` AND is_available = $%d`, len(args))
	}
	q += ` ORDER BY created_at, id`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr("store.ListUsers", "", err)
	}
	users, err := collectUsers(rows)
	return users, mapErr("store.ListUsers", "", err)
}

// UpdateUser applies the non-nil fields of p and returns the stored row.
func (s *Store) UpdateUser(ctx context.Context, id string, p UserPatch) (*model.User, error) {
	const op = "store.UpdateUser"
	var sets []string
	var args []any
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if p.FirstName != nil {
		set("first_name", *p.FirstName)
	}
	if p.LastName != nil {
		set("last_name", *p.LastName)
	}
	if p.Email != nil {
		set("email", *p.Email)
	}
	if p.PasswordHash != nil {
		set("password_hash", *p.PasswordHash)
	}
	if p.Role != nil {
		set("role", string(*p.Role))
	}
	if p.ImageURL != nil {
		set("image_url", *p.ImageURL)
	}
	if p.HourlyRate != nil {
		set("hourly_rate", decimal.NewNullDecimal(*p.HourlyRate))
	}
	if p.Rating != nil {
		set("rating", *p.Rating)
	}
	if p.Skills != nil {
		set("skills", p.Skills)
	}
	if p.IsAvailable != nil {
		set("is_available", *p.IsAvailable)
	}
	if len(sets) == 0 {
		return s.GetUser(ctx, id)
	}

	args = append(args, id)
	q := fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), userColumns)
	u, err := scanUser(s.db.QueryRow(ctx, q, args...))
	if err != nil {
		return nil, mapErr(op, "user", err)
	}
	return u, nil
}

// DeleteUser removes the user. Posts and appointments reference users with
// ON DELETE RESTRICT, so a referenced user yields ConstraintViolation.
func (s *Store) DeleteUser(ctx context.Context, id string) (*model.User, error) {
	const op = "store.DeleteUser"
	u, err := scanUser(s.db.QueryRow(ctx,
		`DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id))
	if err != nil {
		err = mapErr(op, "user", err)
		if apperr.IsKind(err, apperr.KindConstraintViolation) {
			return nil, apperr.Constraint(op, "user still has posts or appointments", err)
		}
		return nil, err
	}
	return u, nil
}
