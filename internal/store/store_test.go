package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/model"
	"tutoring-api/internal/store"
)

var userCols = []string{"id", "first_name", "last_name", "email", "password_hash", "role", "image_url",
	"hourly_rate", "rating", "skills", "is_available", "created_at", "updated_at"}

var bookingCols = []string{"id", "user_id", "tutor_id", "post_id", "date", "state", "intent_id", "amount",
	"currency", "appointment_id", "failure", "created_at", "updated_at"}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *store.Store) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, store.New(mock)
}

func TestCreateUser(t *testing.T) {
	t.Run("Should insert and fill timestamps", func(t *testing.T) {
		mock, st := newMock(t)
		now := time.Now()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(mock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

		u := &model.User{ID: "u1", FirstName: "Ada", LastName: "L", Email: "ada@test.com", PasswordHash: "$2a$10$x", Role: model.RoleTutor}
		require.NoError(t, st.CreateUser(context.Background(), u))
		assert.Equal(t, now, u.CreatedAt)
		assert.Equal(t, []string{}, u.Skills)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should refuse a missing hash without touching the db", func(t *testing.T) {
		mock, st := newMock(t)
		err := st.CreateUser(context.Background(), &model.User{ID: "u1", Email: "a@b.com"})
		assert.True(t, apperr.IsKind(err, apperr.KindValidation))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should map duplicate email to constraint violation", func(t *testing.T) {
		mock, st := newMock(t)
		mock.ExpectQuery("INSERT INTO users").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})
		err := st.CreateUser(context.Background(), &model.User{ID: "u1", Email: "a@b.com", PasswordHash: "h"})
		require.Error(t, err)
		assert.Equal(t, apperr.KindConstraintViolation, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "email already registered")
	})
}

func TestGetUser(t *testing.T) {
	t.Run("Should return the stored row", func(t *testing.T) {
		mock, st := newMock(t)
		now := time.Now()
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs("u1").
			WillReturnRows(mock.NewRows(userCols).
				AddRow("u1", "Ada", "L", "ada@test.com", "$2a$10$x", "TUTOR", nil, nil, nil, []string{"Go"}, true, now, now))
		u, err := st.GetUser(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, model.RoleTutor, u.Role)
		assert.Equal(t, []string{"Go"}, u.Skills)
		assert.False(t, u.HourlyRate.Valid)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should map no rows to not found", func(t *testing.T) {
		mock, st := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = \$1`).
			WithArgs("missing").
			WillReturnError(pgx.ErrNoRows)
		_, err := st.GetUser(context.Background(), "missing")
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})
	t.Run("Should map timeouts to store unavailable", func(t *testing.T) {
		mock, st := newMock(t)
		mock.ExpectQuery(`SELECT (.+) FROM users`).WillReturnError(context.DeadlineExceeded)
		_, err := st.GetUser(context.Background(), "u1")
		assert.Equal(t, apperr.KindStoreUnavailable, apperr.KindOf(err))
	})
}

func TestUpdateUser(t *testing.T) {
	t.Run("Should only set supplied fields", func(t *testing.T) {
		mock, st := newMock(t)
		now := time.Now()
		mock.ExpectQuery(`UPDATE users SET first_name = \$1, is_available = \$2, updated_at = NOW\(\) WHERE id = \$3`).
			WithArgs("Grace", false, "u1").
			WillReturnRows(mock.NewRows(userCols).
				AddRow("u1", "Grace", "L", "ada@test.com", "h", "STUDENT", nil, nil, nil, []string{}, false, now, now))
		name, avail := "Grace", false
		u, err := st.UpdateUser(context.Background(), "u1", store.UserPatch{FirstName: &name, IsAvailable: &avail})
		require.NoError(t, err)
		assert.Equal(t, "Grace", u.FirstName)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("Should surface referenced users as constraint violations", func(t *testing.T) {
		mock, st := newMock(t)
		mock.ExpectQuery(`DELETE FROM users WHERE id = \$1`).
			WithArgs("u1").
			WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "posts_author_id_fkey"})
		_, err := st.DeleteUser(context.Background(), "u1")
		assert.Equal(t, apperr.KindConstraintViolation, apperr.KindOf(err))
		assert.Contains(t, err.Error(), "still has posts or appointments")
	})
}

func TestUsersByIDs(t *testing.T) {
	mock, st := newMock(t)
	now := time.Now()
	mock.ExpectQuery(`SELECT (.+) FROM users WHERE id = ANY\(\$1\)`).
		WithArgs([]string{"a", "b"}).
		WillReturnRows(mock.NewRows(userCols).
			AddRow("a", "A", "A", "a@test.com", "h", "TUTOR", nil, nil, nil, []string{}, true, now, now).
			AddRow("b", "B", "B", "b@test.com", "h", "STUDENT", nil, nil, nil, []string{}, true, now, now))
	users, err := st.UsersByIDs(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionBooking(t *testing.T) {
	t.Run("Should report a lost compare-and-set", func(t *testing.T) {
		mock, st := newMock(t)
		mock.ExpectQuery("UPDATE booking_attempts").
			WithArgs("b1", "awaiting_confirmation", "payment_succeeded",
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnError(pgx.ErrNoRows)
		_, err := st.TransitionBooking(context.Background(), "b1",
			model.BookingAwaitingConfirmation, model.BookingPaymentSucceeded, store.BookingUpdate{})
		assert.ErrorIs(t, err, store.ErrStateChanged)
	})
}

func TestCompleteBooking(t *testing.T) {
	date := model.Date{Year: 2026, Month: time.May, Day: 4}
	appt := func() *model.Appointment {
		return &model.Appointment{ID: "a1", Date: date, UserID: "u1", TutorID: "t1", PostID: "p1", BookingID: "b1"}
	}

	t.Run("Should mark the attempt booked and insert the appointment atomically", func(t *testing.T) {
		mock, st := newMock(t)
		now := time.Now()
		apptID := "a1"
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE booking_attempts").
			WithArgs("b1", "payment_succeeded", "booked", "a1").
			WillReturnRows(mock.NewRows(bookingCols).
				AddRow("b1", "u1", "t1", "p1", date.Time(), "booked", nil, int64(2000), "usd", &apptID, nil, now, now))
		mock.ExpectQuery("INSERT INTO appointments").
			WithArgs("a1", date.Time(), "u1", "t1", "p1", "b1").
			WillReturnRows(mock.NewRows([]string{"created_at"}).AddRow(now))
		mock.ExpectCommit()

		b, err := st.CompleteBooking(context.Background(), "b1", model.BookingPaymentSucceeded, appt())
		require.NoError(t, err)
		assert.Equal(t, model.BookingBooked, b.State)
		assert.Equal(t, date, b.Date)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should report a state change without touching appointments when another writer booked first", func(t *testing.T) {
		mock, st := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE booking_attempts").
			WithArgs("b1", "payment_succeeded", "booked", "a1").
			WillReturnError(pgx.ErrNoRows)
		mock.ExpectRollback()

		_, err := st.CompleteBooking(context.Background(), "b1", model.BookingPaymentSucceeded, appt())
		assert.ErrorIs(t, err, store.ErrStateChanged)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("Should roll back when the slot is already taken", func(t *testing.T) {
		mock, st := newMock(t)
		now := time.Now()
		apptID := "a1"
		mock.ExpectBegin()
		mock.ExpectQuery("UPDATE booking_attempts").
			WillReturnRows(mock.NewRows(bookingCols).
				AddRow("b1", "u1", "t1", "p1", date.Time(), "booked", nil, int64(2000), "usd", &apptID, nil, now, now))
		mock.ExpectQuery("INSERT INTO appointments").
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "appointments_tutor_date_key"})
		mock.ExpectRollback()

		_, err := st.CompleteBooking(context.Background(), "b1", model.BookingPaymentSucceeded, appt())
		assert.Equal(t, apperr.KindConstraintViolation, apperr.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
