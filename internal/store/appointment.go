package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"tutoring-api/internal/model"
)

const appointmentColumns = `id, date, user_id, tutor_id, post_id, booking_id, created_at`

type AppointmentFilter struct {
	UserID  *string
	TutorID *string
	PostID  *string
}

func scanAppointment(row pgx.Row) (*model.Appointment, error) {
	a := &model.Appointment{}
	var date time.Time
	if err := row.Scan(&a.ID, &date, &a.UserID, &a.TutorID, &a.PostID, &a.BookingID, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Date = model.DateOf(date)
	return a, nil
}

func collectAppointments(rows pgx.Rows) ([]*model.Appointment, error) {
	defer rows.Close()
	var out []*model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// insertAppointment is only reachable through CompleteBooking: an appointment
// exists only once its booking attempt is paid.
func insertAppointment(ctx context.Context, tx pgx.Tx, a *model.Appointment) error {
	return tx.QueryRow(ctx,
		`INSERT INTO appointments (id, date, user_id, tutor_id, post_id, booking_id)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 RETURNING created_at`,
		a.ID, a.Date.Time(), a.UserID, a.TutorID, a.PostID, a.BookingID,
	).Scan(&a.CreatedAt)
}

func (s *Store) GetAppointment(ctx context.Context, id string) (*model.Appointment, error) {
	a, err := scanAppointment(s.db.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("store.GetAppointment", "appointment", err)
	}
	return a, nil
}

func (s *Store) ListAppointments(ctx context.Context, f AppointmentFilter) ([]*model.Appointment, error) {
	q := `SELECT ` + appointmentColumns + ` FROM appointments WHERE TRUE`
	var args []any
	for _, c := range []struct {
		col string
		v   *string
	}{{"user_id", f.UserID}, {"tutor_id", f.TutorID}, {"post_id", f.PostID}} {
		if c.v != nil {
			args = append(args, *c.v)
			q += fmt.Sprintf(` AND %s = $%d`, c.col, len(args))
		}
	}
	q += ` ORDER BY date, created_at, id`

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, mapErr("store.ListAppointments", "", err)
	}
	out, err := collectAppointments(rows)
	return out, mapErr("store.ListAppointments", "", err)
}

// SlotTaken reports whether the tutor already has an appointment on date.
func (s *Store) SlotTaken(ctx context.Context, tutorID string, date model.Date) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM appointments WHERE tutor_id = $1 AND date = $2)`,
		tutorID, date.Time(),
	).Scan(&exists)
	return exists, mapErr("store.SlotTaken", "", err)
}
