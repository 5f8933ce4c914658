package handler

import (
	"context"

	"tutoring-api/internal/booking"
	"tutoring-api/internal/model"
	"tutoring-api/internal/store"
)

type StartBookingInput struct {
	UserID         string `json:"userId" validate:"required"`
	TutorID        string `json:"tutorId" validate:"required"`
	PostID         string `json:"postId" validate:"required"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	IdempotencyKey string `json:"idempotencyKey" validate:"omitempty,uuid"`
}

// CreateAppointmentInput confirms a booking. Only the intent id is needed;
// the other fields, when sent, must match what was booked.
type CreateAppointmentInput struct {
	PaymentIntentID string `json:"paymentIntentId" validate:"required"`
	UserID          string `json:"userId"`
	TutorID         string `json:"tutorId"`
	PostID          string `json:"postId"`
	Date            string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) StartBooking(ctx context.Context, in StartBookingInput) (*booking.StartResult, error) {
	if err := h.check("handler.StartBooking", in); err != nil {
		return nil, err
	}
	return h.booking.Start(ctx, booking.StartRequest{
		UserID:         in.UserID,
		TutorID:        in.TutorID,
		PostID:         in.PostID,
		Date:           in.Date,
		IdempotencyKey: in.IdempotencyKey,
	})
}

// CreateAppointment records the appointment for a paid intent. No appointment
// is ever written by any other path.
func (h *Handler) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*model.Appointment, error) {
	if err := h.check("handler.CreateAppointment", in); err != nil {
		return nil, err
	}
	return h.booking.Confirm(ctx, booking.ConfirmRequest{
		PaymentIntentID: in.PaymentIntentID,
		UserID:          in.UserID,
		TutorID:         in.TutorID,
		PostID:          in.PostID,
		Date:            in.Date,
	})
}

func (h *Handler) BookingAttempt(ctx context.Context, id string) (*model.BookingAttempt, error) {
	if err := requireID("handler.BookingAttempt", id); err != nil {
		return nil, err
	}
	return h.booking.Attempt(ctx, id)
}

func (h *Handler) Appointment(ctx context.Context, id string) (*model.Appointment, error) {
	if err := requireID("handler.Appointment", id); err != nil {
		return nil, err
	}
	return h.repo.GetAppointment(ctx, id)
}

func (h *Handler) Appointments(ctx context.Context, f store.AppointmentFilter) ([]*model.Appointment, error) {
	return h.repo.ListAppointments(ctx, f)
}
