package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"tutoring-api/internal/model"
)

// ErrStateChanged is returned when a transition's expected source state no
// longer matches the stored one; another actor moved the attempt first.
var ErrStateChanged = errors.New("booking attempt state changed")

const bookingColumns = `id, user_id, tutor_id, post_id, date, state, intent_id, amount, currency,
	appointment_id, failure, created_at, updated_at`

// BookingUpdate carries the optional columns written alongside a transition.
type BookingUpdate struct {
	IntentID *string
	Amount   *int64
	Currency *string
	Failure  *string
}

func scanBooking(row pgx.Row) (*model.BookingAttempt, error) {
	b := &model.BookingAttempt{}
	var date time.Time
	var state string
	err := row.Scan(&b.ID, &b.UserID, &b.TutorID, &b.PostID, &date, &state, &b.IntentID, &b.Amount,
		&b.Currency, &b.AppointmentID, &b.Failure, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Date = model.DateOf(date)
	b.State = model.BookingState(state)
	return b, nil
}

// CreateBookingAttempt inserts a draft attempt. The partial unique index on
// (tutor_id, date) holds the slot until the attempt is abandoned, so a second
// concurrent attempt for the same slot gets ConstraintViolation here.
func (s *Store) CreateBookingAttempt(ctx context.Context, b *model.BookingAttempt) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO booking_attempts (id, user_id, tutor_id, post_id, date, state, amount, currency)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING created_at, updated_at`,
		b.ID, b.UserID, b.TutorID, b.PostID, b.Date.Time(), string(b.State), b.Amount, b.Currency,
	).Scan(&b.CreatedAt, &b.UpdatedAt)
	return mapErr("store.CreateBookingAttempt", "booking attempt", err)
}

func (s *Store) GetBookingAttempt(ctx context.Context, id string) (*model.BookingAttempt, error) {
	b, err := scanBooking(s.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM booking_attempts WHERE id = $1`, id))
	if err != nil {
		return nil, mapErr("store.GetBookingAttempt", "booking attempt", err)
	}
	return b, nil
}

func (s *Store) BookingAttemptByIntent(ctx context.Context, intentID string) (*model.BookingAttempt, error) {
	b, err := scanBooking(s.db.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM booking_attempts WHERE intent_id = $1`, intentID))
	if err != nil {
		return nil, mapErr("store.BookingAttemptByIntent", "booking attempt", err)
	}
	return b, nil
}

// TransitionBooking moves an attempt from one state to the next. It is a
// compare-and-set: ErrStateChanged means the stored state was not from.
func (s *Store) TransitionBooking(ctx context.Context, id string, from, to model.BookingState, u BookingUpdate) (*model.BookingAttempt, error) {
	b, err := scanBooking(s.db.QueryRow(ctx,
		`UPDATE booking_attempts
		 SET state = $3,
		     intent_id = COALESCE($4, intent_id),
		     amount = COALESCE($5, amount),
		     currency = COALESCE($6, currency),
		     failure = COALESCE($7, failure),
		     updated_at = NOW()
		 WHERE id = $1 AND state = $2
		 RETURNING `+bookingColumns,
		id, string(from), string(to), u.IntentID, u.Amount, u.Currency, u.Failure,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrStateChanged
	}
	if err != nil {
		return nil, mapErr("store.TransitionBooking", "booking attempt", err)
	}
	return b, nil
}

// CompleteBooking marks the attempt booked and inserts the appointment in one
// transaction; either both happen or neither does. The state update runs
// first so a writer that lost the race sees ErrStateChanged rather than the
// appointment's unique violation.
func (s *Store) CompleteBooking(ctx context.Context, attemptID string, from model.BookingState, a *model.Appointment) (*model.BookingAttempt, error) {
	const op = "store.CompleteBooking"
	var out *model.BookingAttempt
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		b, err := scanBooking(tx.QueryRow(ctx,
			`UPDATE booking_attempts
			 SET state = $3, appointment_id = $4, failure = NULL, updated_at = NOW()
			 WHERE id = $1 AND state = $2
			 RETURNING `+bookingColumns,
			attemptID, string(from), string(model.BookingBooked), a.ID,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrStateChanged
		}
		if err != nil {
			return err
		}
		if err := insertAppointment(ctx, tx, a); err != nil {
			return err
		}
		out = b
		return nil
	})
	if errors.Is(err, ErrStateChanged) {
		return nil, ErrStateChanged
	}
	if err != nil {
		return nil, mapErr(op, "booking attempt", err)
	}
	return out, nil
}

// StaleBookingAttempts lists attempts in one of states not touched since before.
func (s *Store) StaleBookingAttempts(ctx context.Context, states []model.BookingState, before time.Time, limit int) ([]*model.BookingAttempt, error) {
	const op = "store.StaleBookingAttempts"
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+bookingColumns+` FROM booking_attempts
		 WHERE state = ANY($1) AND updated_at < $2
		 ORDER BY updated_at
		 LIMIT $3`, names, before, limit)
	if err != nil {
		return nil, mapErr(op, "", err)
	}
	defer rows.Close()

	var out []*model.BookingAttempt
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, mapErr(op, "", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(op, "", err)
	}
	return out, nil
}
