// Package handler holds the validated entry points behind the GraphQL and
// checkout surfaces: user and post mutations, entity reads, and the booking
// operations.
package handler

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/booking"
	"tutoring-api/internal/model"
	"tutoring-api/internal/store"
)

type Repository interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context, f store.UserFilter) ([]*model.User, error)
	UpdateUser(ctx context.Context, id string, p store.UserPatch) (*model.User, error)
	DeleteUser(ctx context.Context, id string) (*model.User, error)

	CreatePost(ctx context.Context, p *model.Post) error
	GetPost(ctx context.Context, id string) (*model.Post, error)
	ListPosts(ctx context.Context, f store.PostFilter) ([]*model.Post, error)
	UpdatePost(ctx context.Context, id string, p store.PostPatch) (*model.Post, error)
	DeletePost(ctx context.Context, id string) (*model.Post, error)

	GetAppointment(ctx context.Context, id string) (*model.Appointment, error)
	ListAppointments(ctx context.Context, f store.AppointmentFilter) ([]*model.Appointment, error)
}

// Booker is the booking workflow.
type Booker interface {
	Start(ctx context.Context, req booking.StartRequest) (*booking.StartResult, error)
	Confirm(ctx context.Context, req booking.ConfirmRequest) (*model.Appointment, error)
	Attempt(ctx context.Context, id string) (*model.BookingAttempt, error)
}

type Handler struct {
	repo     Repository
	booking  Booker
	validate *validator.Validate
	newID    func() string
}

func New(repo Repository, b Booker) *Handler {
	v := validator.New()
	// report fields by their wire name
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Handler{repo: repo, booking: b, validate: v, newID: uuid.NewString}
}

// check runs struct validation and turns the first failures into one
// Validation error.
func (h *Handler) check(op string, in any) error {
	err := h.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Wrap(apperr.KindInternal, op, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Validation(op, "%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "email":
		return fe.Field() + " must be a valid email"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of %s", fe.Field(), fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s is out of range", fe.Field())
	case "datetime":
		return fmt.Sprintf("%s must be formatted %s", fe.Field(), fe.Param())
	}
	return fmt.Sprintf("%s is invalid (%s)", fe.Field(), fe.Tag())
}

func requireID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.Validation(op, "id is required")
	}
	return nil
}
