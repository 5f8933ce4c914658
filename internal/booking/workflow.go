// Package booking runs the booking state machine: a slot is held, an intent
// is created, and an appointment is written only after the processor reports
// the payment as succeeded.
package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/logger"
	"tutoring-api/internal/metrics"
	"tutoring-api/internal/model"
	"tutoring-api/internal/payment"
	"tutoring-api/internal/store"
)

// Repository is the slice of the store the workflow drives.
type Repository interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	GetPost(ctx context.Context, id string) (*model.Post, error)
	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	SlotTaken(ctx context.Context, tutorID string, date model.Date) (bool, error)
	CreateBookingAttempt(ctx context.Context, b *model.BookingAttempt) error
	GetBookingAttempt(ctx context.Context, id string) (*model.BookingAttempt, error)
	BookingAttemptByIntent(ctx context.Context, intentID string) (*model.BookingAttempt, error)
	TransitionBooking(ctx context.Context, id string, from, to model.BookingState, u store.BookingUpdate) (*model.BookingAttempt, error)
	CompleteBooking(ctx context.Context, attemptID string, from model.BookingState, a *model.Appointment) (*model.BookingAttempt, error)
	StaleBookingAttempts(ctx context.Context, states []model.BookingState, before time.Time, limit int) ([]*model.BookingAttempt, error)
}

// Payments is the orchestrator surface the workflow needs.
type Payments interface {
	CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error)
	InspectIntent(ctx context.Context, id string) (*payment.Intent, error)
	CancelIntent(ctx context.Context, id string) (*payment.Intent, error)
	Currency() string
}

type Config struct {
	// DefaultAmount is charged when the tutor has no hourly rate.
	DefaultAmount  int64
	ConfirmTimeout time.Duration
	WriteRetries   uint64
	WriteBackoff   time.Duration
}

type Workflow struct {
	repo  Repository
	pay   Payments
	cfg   Config
	now   func() time.Time
	newID func() string
}

func New(repo Repository, pay Payments, cfg Config) *Workflow {
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 30 * time.Minute
	}
	if cfg.WriteBackoff <= 0 {
		cfg.WriteBackoff = 100 * time.Millisecond
	}
	return &Workflow{
		repo:  repo,
		pay:   pay,
		cfg:   cfg,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// maxSettleRounds bounds how often a lost compare-and-set is re-read and
// retried before giving up.
const maxSettleRounds = 3

type StartRequest struct {
	UserID  string
	TutorID string
	PostID  string
	Date    string
	// IdempotencyKey, when set, becomes the booking id. Repeating Start with
	// the same key resumes that attempt instead of creating another.
	IdempotencyKey string
}

type StartResult struct {
	BookingID    string
	IntentID     string
	ClientSecret string
	Amount       int64
	Currency     string
	State        model.BookingState
}

// Start validates the request, holds the slot, and creates a payment intent.
// Every validation failure is returned before any call to the processor.
func (w *Workflow) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	const op = "booking.Start"

	if req.IdempotencyKey != "" {
		if _, err := uuid.Parse(req.IdempotencyKey); err != nil {
			return nil, apperr.Validation(op, "idempotencyKey must be a UUID")
		}
		existing, err := w.repo.GetBookingAttempt(ctx, req.IdempotencyKey)
		switch {
		case err == nil:
			return w.resume(ctx, existing, req)
		case !apperr.IsKind(err, apperr.KindNotFound):
			return nil, err
		}
	}

	date, tutor, err := w.validate(ctx, op, req)
	if err != nil {
		return nil, err
	}
	taken, err := w.repo.SlotTaken(ctx, req.TutorID, date)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Constraint(op, "tutor is already booked on this date", nil)
	}

	id := req.IdempotencyKey
	if id == "" {
		id = w.newID()
	}
	a := &model.BookingAttempt{
		ID:       id,
		UserID:   req.UserID,
		TutorID:  req.TutorID,
		PostID:   req.PostID,
		Date:     date,
		State:    model.BookingDraft,
		Amount:   w.amountFor(tutor),
		Currency: w.pay.Currency(),
	}
	if err := w.repo.CreateBookingAttempt(ctx, a); err != nil {
		return nil, err
	}
	w.logger(ctx, a).Info("booking.created", zap.Int64("amount", a.Amount))

	return w.advance(ctx, a)
}

func (w *Workflow) validate(ctx context.Context, op string, req StartRequest) (model.Date, *model.User, error) {
	if req.UserID == "" || req.TutorID == "" || req.PostID == "" || req.Date == "" {
		return model.Date{}, nil, apperr.Validation(op, "userId, tutorId, postId and date are required")
	}
	if req.UserID == req.TutorID {
		return model.Date{}, nil, apperr.Validation(op, "a user cannot book themselves")
	}
	date, err := model.ParseDate(req.Date)
	if err != nil {
		return model.Date{}, nil, apperr.Validation(op, "%s", err.Error())
	}
	if date.Time().Before(model.DateOf(w.now().UTC()).Time()) {
		return model.Date{}, nil, apperr.Validation(op, "date must not be in the past")
	}

	if _, err := w.repo.GetUser(ctx, req.UserID); err != nil {
		return model.Date{}, nil, err
	}
	tutor, err := w.repo.GetUser(ctx, req.TutorID)
	if err != nil {
		return model.Date{}, nil, err
	}
	if tutor.Role != model.RoleTutor {
		return model.Date{}, nil, apperr.Validation(op, "user %s is not a tutor", req.TutorID)
	}
	if !tutor.IsAvailable {
		return model.Date{}, nil, apperr.Validation(op, "tutor is not accepting bookings")
	}
	post, err := w.repo.GetPost(ctx, req.PostID)
	if err != nil {
		return model.Date{}, nil, err
	}
	if post.AuthorID != req.TutorID {
		return model.Date{}, nil, apperr.Validation(op, "post does not belong to tutor")
	}
	return date, tutor, nil
}

// amountFor charges one hour at the tutor's rate, in minor units.
func (w *Workflow) amountFor(tutor *model.User) int64 {
	if tutor.HourlyRate.Valid && tutor.HourlyRate.Decimal.IsPositive() {
		return tutor.HourlyRate.Decimal.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	}
	return w.cfg.DefaultAmount
}

func (w *Workflow) resume(ctx context.Context, a *model.BookingAttempt, req StartRequest) (*StartResult, error) {
	const op = "booking.Start"
	if a.UserID != req.UserID || a.TutorID != req.TutorID || a.PostID != req.PostID || a.Date.String() != req.Date {
		return nil, apperr.Validation(op, "idempotencyKey already used for a different booking")
	}
	if a.State == model.BookingAbandoned {
		return nil, apperr.New(apperr.KindPaymentFailed, op, "booking attempt was abandoned; start a new one")
	}
	return w.advance(ctx, a)
}

// advance brings an attempt at most as far as awaiting_confirmation and
// reports the intent the client must confirm.
func (w *Workflow) advance(ctx context.Context, a *model.BookingAttempt) (*StartResult, error) {
	const op = "booking.Start"
	var intent *payment.Intent
	var err error

	if a.State == model.BookingDraft {
		intent, err = w.pay.CreateIntent(ctx, payment.IntentRequest{
			Amount:         a.Amount,
			Currency:       a.Currency,
			IdempotencyKey: a.ID,
			Metadata: map[string]string{
				"booking_id": a.ID,
				"user_id":    a.UserID,
				"tutor_id":   a.TutorID,
				"post_id":    a.PostID,
				"date":       a.Date.String(),
			},
		})
		if err != nil {
			w.abandon(ctx, a, model.FailureIntentError)
			return nil, err
		}
		a, err = w.transition(ctx, a, model.BookingIntentCreated, store.BookingUpdate{
			IntentID: &intent.ID,
			Amount:   &intent.Amount,
			Currency: &intent.Currency,
		})
		if err != nil {
			return nil, w.conflict(op, err)
		}
	}
	if a.State == model.BookingIntentCreated {
		if a, err = w.transition(ctx, a, model.BookingAwaitingConfirmation, store.BookingUpdate{}); err != nil {
			return nil, w.conflict(op, err)
		}
	}
	if intent == nil {
		if a.IntentID == nil {
			return nil, apperr.New(apperr.KindInternal, op, "booking attempt has no payment intent")
		}
		if intent, err = w.pay.InspectIntent(ctx, *a.IntentID); err != nil {
			return nil, err
		}
	}
	return &StartResult{
		BookingID:    a.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       a.Amount,
		Currency:     a.Currency,
		State:        a.State,
	}, nil
}

type ConfirmRequest struct {
	PaymentIntentID string
	// Optional; when supplied they must match the attempt.
	UserID  string
	TutorID string
	PostID  string
	Date    string
}

// Confirm settles the attempt behind a payment intent. The appointment is
// written only when the processor reports the payment as succeeded.
func (w *Workflow) Confirm(ctx context.Context, req ConfirmRequest) (*model.Appointment, error) {
	const op = "booking.Confirm"
	if req.PaymentIntentID == "" {
		return nil, apperr.Validation(op, "paymentIntentId is required")
	}
	a, err := w.repo.BookingAttemptByIntent(ctx, req.PaymentIntentID)
	if err != nil {
		return nil, err
	}
	if mismatch(a, req) {
		return nil, apperr.Validation(op, "booking details do not match the payment intent")
	}
	return w.settle(ctx, a)
}

func mismatch(a *model.BookingAttempt, req ConfirmRequest) bool {
	if req.UserID != "" && req.UserID != a.UserID {
		return true
	}
	if req.TutorID != "" && req.TutorID != a.TutorID {
		return true
	}
	if req.PostID != "" && req.PostID != a.PostID {
		return true
	}
	if req.Date != "" {
		d, err := model.ParseDate(req.Date)
		if err != nil || d != a.Date {
			return true
		}
	}
	return false
}

// settle drives a to its next resting state, re-reading it whenever another
// actor moved it first.
func (w *Workflow) settle(ctx context.Context, a *model.BookingAttempt) (*model.Appointment, error) {
	for i := 0; i < maxSettleRounds; i++ {
		appt, err := w.step(ctx, a)
		if !errors.Is(err, store.ErrStateChanged) {
			return appt, err
		}
		if a, err = w.repo.GetBookingAttempt(ctx, a.ID); err != nil {
			return nil, err
		}
	}
	return nil, w.conflict("booking.Confirm", store.ErrStateChanged)
}

func (w *Workflow) step(ctx context.Context, a *model.BookingAttempt) (*model.Appointment, error) {
	const op = "booking.Confirm"
	switch a.State {
	case model.BookingBooked:
		if a.AppointmentID == nil {
			return nil, apperr.New(apperr.KindInternal, op, "booked attempt has no appointment")
		}
		return w.repo.GetAppointment(ctx, *a.AppointmentID)
	case model.BookingAbandoned:
		return w.reclaim(ctx, a)
	case model.BookingPaymentSucceeded, model.BookingPendingRetry:
		return w.complete(ctx, a)
	case model.BookingDraft:
		return nil, apperr.New(apperr.KindPaymentRequiresAction, op, "payment intent not created yet")
	}

	if a.IntentID == nil {
		return nil, apperr.New(apperr.KindInternal, op, "booking attempt has no payment intent")
	}
	intent, err := w.pay.InspectIntent(ctx, *a.IntentID)
	if err != nil {
		return nil, err
	}

	switch intent.Status {
	case payment.StatusSucceeded:
		return w.paid(ctx, a)
	case payment.StatusFailed, payment.StatusCanceled:
		appt, err := w.void(ctx, a, intent.Status, model.FailurePaymentFailed)
		if err != nil || appt != nil {
			return appt, err
		}
		return nil, apperr.New(apperr.KindPaymentFailed, op, "payment failed")
	}
	return nil, &apperr.Error{
		Kind:    apperr.KindPaymentRequiresAction,
		Op:      op,
		Message: "payment is " + string(intent.Status),
	}
}

// paid records the processor's success on a and writes the appointment.
func (w *Workflow) paid(ctx context.Context, a *model.BookingAttempt) (*model.Appointment, error) {
	a, err := w.transition(ctx, a, model.BookingPaymentSucceeded, store.BookingUpdate{})
	if err != nil {
		return nil, err
	}
	return w.complete(ctx, a)
}

// void cancels a's intent and abandons a. A declined intent can still be
// confirmed with another card, so it is cancelled too. When the charge landed
// before the cancel, a is completed instead and the appointment returned.
func (w *Workflow) void(ctx context.Context, a *model.BookingAttempt, status payment.Status, failure string) (*model.Appointment, error) {
	if status != payment.StatusCanceled && a.IntentID != nil {
		if _, err := w.pay.CancelIntent(ctx, *a.IntentID); err != nil {
			intent, ierr := w.pay.InspectIntent(ctx, *a.IntentID)
			if ierr != nil {
				return nil, err
			}
			switch intent.Status {
			case payment.StatusSucceeded:
				return w.paid(ctx, a)
			case payment.StatusCanceled:
			default:
				return nil, err
			}
		}
	}
	if _, err := w.transition(ctx, a, model.BookingAbandoned, store.BookingUpdate{Failure: &failure}); err != nil {
		return nil, err
	}
	return nil, nil
}

// reclaim handles a confirm for an abandoned attempt. Normally its intent is
// canceled and the payment is reported failed. If the processor nevertheless
// took the money, the attempt retakes its slot and is booked; when the slot
// has gone to someone else the loss is recorded for a refund.
func (w *Workflow) reclaim(ctx context.Context, a *model.BookingAttempt) (*model.Appointment, error) {
	const op = "booking.Confirm"
	if a.IntentID == nil {
		return nil, apperr.New(apperr.KindPaymentFailed, op, "booking attempt was abandoned")
	}
	intent, err := w.pay.InspectIntent(ctx, *a.IntentID)
	if err != nil {
		return nil, err
	}
	if intent.Status != payment.StatusSucceeded {
		return nil, apperr.New(apperr.KindPaymentFailed, op, "booking attempt was abandoned")
	}

	log := w.logger(ctx, a)
	log.Error("booking.paid_after_abandon", zap.String("intent_id", intent.ID))
	appt, err := w.paid(ctx, a)
	if err == nil || errors.Is(err, store.ErrStateChanged) || !apperr.IsKind(err, apperr.KindConstraintViolation) {
		return appt, err
	}
	failure := model.FailureSlotTaken
	if _, terr := w.repo.TransitionBooking(ctx, a.ID, a.State, model.BookingAbandoned, store.BookingUpdate{Failure: &failure}); terr != nil {
		log.Error("booking.slot_lost_record_failed", zap.Error(terr))
	}
	log.Error("booking.slot_lost", zap.Error(err))
	return nil, apperr.Constraint(op, "payment received but the slot was taken; the payment will be refunded", err)
}

// complete writes the appointment for a paid attempt, retrying while the
// store is unavailable. If the write still fails the attempt is parked in
// booked_pending_retry; the payment is never treated as failed.
func (w *Workflow) complete(ctx context.Context, a *model.BookingAttempt) (*model.Appointment, error) {
	const op = "booking.Complete"
	appt := &model.Appointment{
		ID:        w.newID(),
		Date:      a.Date,
		UserID:    a.UserID,
		TutorID:   a.TutorID,
		PostID:    a.PostID,
		BookingID: a.ID,
	}

	backoff := retry.WithMaxRetries(w.cfg.WriteRetries, retry.NewExponential(w.cfg.WriteBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		_, err := w.repo.CompleteBooking(ctx, a.ID, a.State, appt)
		if apperr.IsKind(err, apperr.KindStoreUnavailable) {
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, store.ErrStateChanged) {
		return nil, err
	}
	if apperr.IsKind(err, apperr.KindConstraintViolation) {
		// another actor may have booked a while this write lost the race
		if cur, gerr := w.repo.GetBookingAttempt(ctx, a.ID); gerr == nil && cur.State != a.State {
			return nil, store.ErrStateChanged
		}
	}
	if err != nil {
		// re-entering pending_retry moves updated_at to the back of Reconcile's queue
		failure := model.FailureWriteFailed
		if _, terr := w.repo.TransitionBooking(ctx, a.ID, a.State, model.BookingPendingRetry, store.BookingUpdate{Failure: &failure}); terr != nil {
			w.logger(ctx, a).Error("booking.pending_retry_transition_failed", zap.Error(terr))
		} else if a.State != model.BookingPendingRetry {
			w.record(ctx, a, model.BookingPendingRetry)
		}
		w.logger(ctx, a).Error("booking.pending_retry", zap.Error(err))
		return nil, &apperr.Error{
			Kind:    apperr.KindBookedPendingRetry,
			Op:      op,
			Message: "payment received; appointment will be recorded shortly",
			Err:     err,
		}
	}

	w.record(ctx, a, model.BookingBooked)
	return appt, nil
}

// Expire abandons attempts that have waited longer than the confirm timeout.
// An attempt whose payment already succeeded is completed instead, and one
// still processing is left alone.
func (w *Workflow) Expire(ctx context.Context, limit int) (int, error) {
	before := w.now().Add(-w.cfg.ConfirmTimeout)
	stale, err := w.repo.StaleBookingAttempts(ctx, []model.BookingState{
		model.BookingDraft, model.BookingIntentCreated, model.BookingAwaitingConfirmation,
	}, before, limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range stale {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if w.expire(ctx, a) {
			n++
		}
	}
	return n, nil
}

func (w *Workflow) expire(ctx context.Context, a *model.BookingAttempt) bool {
	log := w.logger(ctx, a)
	failure := model.FailureTimeout
	if a.IntentID != nil {
		intent, err := w.pay.InspectIntent(ctx, *a.IntentID)
		if err != nil {
			log.Warn("booking.expire_inspect_failed", zap.Error(err))
			return false
		}
		switch intent.Status {
		case payment.StatusSucceeded:
			if _, err := w.settle(ctx, a); err != nil {
				log.Warn("booking.expire_settle_failed", zap.Error(err))
				return false
			}
			return true
		case payment.StatusProcessing:
			return false
		case payment.StatusFailed, payment.StatusCanceled:
			failure = model.FailurePaymentFailed
		}
		if _, err := w.void(ctx, a, intent.Status, failure); err != nil {
			if !errors.Is(err, store.ErrStateChanged) {
				log.Warn("booking.expire_failed", zap.Error(err))
			}
			return false
		}
		return true
	}
	if _, err := w.transition(ctx, a, model.BookingAbandoned, store.BookingUpdate{Failure: &failure}); err != nil {
		if !errors.Is(err, store.ErrStateChanged) {
			log.Warn("booking.expire_failed", zap.Error(err))
		}
		return false
	}
	return true
}

// Reconcile retries the appointment write for attempts that were paid but
// never booked.
func (w *Workflow) Reconcile(ctx context.Context, limit int) (int, error) {
	paid, err := w.repo.StaleBookingAttempts(ctx, []model.BookingState{
		model.BookingPaymentSucceeded, model.BookingPendingRetry,
	}, w.now(), limit)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range paid {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if _, err := w.settle(ctx, a); err != nil {
			w.logger(ctx, a).Warn("booking.reconcile_failed", zap.Error(err))
			continue
		}
		n++
	}
	return n, nil
}

// Attempt returns the stored attempt.
func (w *Workflow) Attempt(ctx context.Context, id string) (*model.BookingAttempt, error) {
	return w.repo.GetBookingAttempt(ctx, id)
}

func (w *Workflow) transition(ctx context.Context, a *model.BookingAttempt, to model.BookingState, u store.BookingUpdate) (*model.BookingAttempt, error) {
	next, err := w.repo.TransitionBooking(ctx, a.ID, a.State, to, u)
	if err != nil {
		return nil, err
	}
	w.record(ctx, a, to)
	return next, nil
}

func (w *Workflow) record(ctx context.Context, a *model.BookingAttempt, to model.BookingState) {
	metrics.BookingTransitions.WithLabelValues(string(a.State), string(to)).Inc()
	w.logger(ctx, a).Info("booking.transition",
		zap.String("from", string(a.State)),
		zap.String("to", string(to)),
	)
}

func (w *Workflow) abandon(ctx context.Context, a *model.BookingAttempt, failure string) {
	if _, err := w.transition(ctx, a, model.BookingAbandoned, store.BookingUpdate{Failure: &failure}); err != nil {
		w.logger(ctx, a).Error("booking.abandon_failed", zap.Error(err))
	}
}

func (w *Workflow) conflict(op string, err error) error {
	if errors.Is(err, store.ErrStateChanged) {
		return apperr.Constraint(op, "booking attempt changed concurrently", err)
	}
	return err
}

func (w *Workflow) logger(ctx context.Context, a *model.BookingAttempt) *zap.Logger {
	return logger.FromContext(ctx).With(zap.String("booking_id", a.ID))
}
