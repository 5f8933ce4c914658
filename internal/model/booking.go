package model

import "time"

type BookingState string

const (
	BookingDraft                BookingState = "draft"
	BookingIntentCreated        BookingState = "intent_created"
	BookingAwaitingConfirmation BookingState = "awaiting_confirmation"
	BookingPaymentSucceeded     BookingState = "payment_succeeded"
	BookingBooked               BookingState = "booked"
	BookingPendingRetry         BookingState = "booked_pending_retry"
	BookingAbandoned            BookingState = "abandoned"
)

// failure reasons recorded on abandoned / pending attempts
const (
	FailurePaymentFailed = "payment_failed"
	FailureIntentError   = "intent_error"
	FailureTimeout       = "timeout"
	FailureWriteFailed   = "appointment_write_failed"
	FailureSlotTaken     = "slot_taken"
)

// BookingAttempt is one run of the booking state machine. Its fields are
// validated once, at Draft, and never change afterwards.
type BookingAttempt struct {
	ID            string
	UserID        string
	TutorID       string
	PostID        string
	Date          Date
	State         BookingState
	IntentID      *string
	Amount        int64
	Currency      string
	AppointmentID *string
	Failure       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
