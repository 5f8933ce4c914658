package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tutoring-api/internal/apperr"
)

// DB is the subset of pgx the repository needs; satisfied by *pgxpool.Pool
// and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type Store struct {
	db   DB
	pool *pgxpool.Pool
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Open builds the connection pool and verifies it with a ping. The caller
// owns the returned store and must Close it.
func Open(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return &Store{db: pool, pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func (s *Store) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return mapErr("store.Ping", "", err)
	}
	return nil
}

// withTx runs fn in a transaction, rolling back on any error.
func (s *Store) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// constraint names declared in migrations
var constraintMessages = map[string]string{
	"users_email_key":                "email already registered",
	"posts_author_id_fkey":           "author is referenced by existing posts or does not exist",
	"appointments_user_id_fkey":      "user is referenced by existing appointments or does not exist",
	"appointments_tutor_id_fkey":     "tutor is referenced by existing appointments or does not exist",
	"appointments_post_id_fkey":      "post is referenced by existing appointments or does not exist",
	"appointments_booking_id_fkey":   "booking attempt does not exist",
	"appointments_tutor_date_key":    "tutor is already booked on this date",
	"appointments_no_self_booking":   "a user cannot book themselves",
	"booking_attempts_slot_hold_idx": "tutor slot is already held by another booking",
	"booking_attempts_intent_id_key": "payment intent already linked to another booking",
}

// mapErr turns driver errors into kinded errors. entity names the row kind
// for NotFound messages.
func mapErr(op, entity string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		if entity == "" {
			entity = "row"
		}
		return apperr.NotFound(op, entity)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505", "23503", "23514":
			msg, ok := constraintMessages[pgErr.ConstraintName]
			if !ok {
				msg = "constraint " + pgErr.ConstraintName + " violated"
			}
			return apperr.Constraint(op, msg, err)
		case "22007", "22008", "22P02":
			return &apperr.Error{Kind: apperr.KindValidation, Op: op, Message: "malformed value", Err: err}
		case "57P01", "57P02", "57P03", "53300":
			return apperr.Wrap(apperr.KindStoreUnavailable, op, err)
		}
		return apperr.Wrap(apperr.KindInternal, op, err)
	}

	if unavailable(err) {
		return apperr.Wrap(apperr.KindStoreUnavailable, op, err)
	}
	return apperr.Wrap(apperr.KindInternal, op, err)
}

func unavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
