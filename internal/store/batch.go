package store

import (
	"context"

	"tutoring-api/internal/model"
)

// Batch lookups back the relation loader: each issues exactly one query for
// the whole id set.

func (s *Store) UsersByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	rows, err := s.db.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapErr("store.UsersByIDs", "", err)
	}
	users, err := collectUsers(rows)
	return users, mapErr("store.UsersByIDs", "", err)
}

func (s *Store) PostsByIDs(ctx context.Context, ids []string) ([]*model.Post, error) {
	rows, err := s.db.Query(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, mapErr("store.PostsByIDs", "", err)
	}
	posts, err := collectPosts(rows)
	return posts, mapErr("store.PostsByIDs", "", err)
}

func (s *Store) PostsByAuthorIDs(ctx context.Context, authorIDs []string) ([]*model.Post, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+postColumns+` FROM posts WHERE author_id = ANY($1) ORDER BY created_at, id`, authorIDs)
	if err != nil {
		return nil, mapErr("store.PostsByAuthorIDs", "", err)
	}
	posts, err := collectPosts(rows)
	return posts, mapErr("store.PostsByAuthorIDs", "", err)
}

func (s *Store) AppointmentsByUserIDs(ctx context.Context, ids []string) ([]*model.Appointment, error) {
	return s.appointmentsBy(ctx, "store.AppointmentsByUserIDs", "user_id", ids)
}

func (s *Store) AppointmentsByTutorIDs(ctx context.Context, ids []string) ([]*model.Appointment, error) {
	return s.appointmentsBy(ctx, "store.AppointmentsByTutorIDs", "tutor_id", ids)
}

func (s *Store) AppointmentsByPostIDs(ctx context.Context, ids []string) ([]*model.Appointment, error) {
	return s.appointmentsBy(ctx, "store.AppointmentsByPostIDs", "post_id", ids)
}

// col is one of the fixed foreign key columns above, never caller input.
func (s *Store) appointmentsBy(ctx context.Context, op, col string, ids []string) ([]*model.Appointment, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE `+col+` = ANY($1) ORDER BY date, created_at, id`, ids)
	if err != nil {
		return nil, mapErr(op, "", err)
	}
	out, err := collectAppointments(rows)
	return out, mapErr(op, "", err)
}
