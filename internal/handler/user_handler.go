package handler

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/auth"
	"tutoring-api/internal/model"
	"tutoring-api/internal/store"
)

type CreateUserInput struct {
	FirstName   string   `json:"firstName" validate:"required,max=100"`
	LastName    string   `json:"lastName" validate:"required,max=100"`
	Email       string   `json:"email" validate:"required,email,max=254"`
	Password    string   `json:"password" validate:"required,min=8,max=72"`
	Role        string   `json:"role" validate:"omitempty,oneof=TUTOR STUDENT"`
	ImageURL    *string  `json:"imageUrl" validate:"omitempty,url"`
	HourlyRate  *float64 `json:"hourlyRate" validate:"omitempty,gte=0,lte=100000"`
	Rating      *float64 `json:"rating" validate:"omitempty,gte=0,lte=5"`
	Skills      []string `json:"skills" validate:"omitempty,max=50,dive,required,max=60"`
	IsAvailable *bool    `json:"isAvailable"`
}

type UpdateUserInput struct {
	FirstName   *string  `json:"firstName" validate:"omitnil,min=1,max=100"`
	LastName    *string  `json:"lastName" validate:"omitnil,min=1,max=100"`
	Email       *string  `json:"email" validate:"omitnil,email,max=254"`
	Password    *string  `json:"password" validate:"omitnil,min=8,max=72"`
	Role        *string  `json:"role" validate:"omitnil,oneof=TUTOR STUDENT"`
	ImageURL    *string  `json:"imageUrl" validate:"omitnil,url"`
	HourlyRate  *float64 `json:"hourlyRate" validate:"omitnil,gte=0,lte=100000"`
	Rating      *float64 `json:"rating" validate:"omitnil,gte=0,lte=5"`
	Skills      []string `json:"skills" validate:"omitempty,max=50,dive,required,max=60"`
	IsAvailable *bool    `json:"isAvailable"`
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// money keeps two decimal places, ratings one.
func money(f float64) decimal.Decimal { return decimal.NewFromFloat(f).Round(2) }

func roundRating(f float64) float64 {
	r, _ := decimal.NewFromFloat(f).Round(1).Float64()
	return r
}

func (h *Handler) CreateUser(ctx context.Context, in CreateUserInput) (*model.User, error) {
	const op = "handler.CreateUser"
	in.Email = normalizeEmail(in.Email)
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	if err := h.check(op, in); err != nil {
		return nil, err
	}
	role, err := model.ParseRole(in.Role)
	if err != nil {
		return nil, apperr.Validation(op, "%s", err.Error())
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, op, err)
	}

	u := &model.User{
		ID:           h.newID(),
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		ImageURL:     in.ImageURL,
		Skills:       in.Skills,
		IsAvailable:  true,
	}
	if in.HourlyRate != nil {
		u.HourlyRate = decimal.NewNullDecimal(money(*in.HourlyRate))
	}
	if in.Rating != nil {
		r := roundRating(*in.Rating)
		u.Rating = &r
	}
	if in.IsAvailable != nil {
		u.IsAvailable = *in.IsAvailable
	}

	if err := h.repo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// UpdateUser applies only the supplied fields.
func (h *Handler) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (*model.User, error) {
	const op = "handler.UpdateUser"
	if err := requireID(op, id); err != nil {
		return nil, err
	}
	if in.Email != nil {
		e := normalizeEmail(*in.Email)
		in.Email = &e
	}
	if err := h.check(op, in); err != nil {
		return nil, err
	}

	p := store.UserPatch{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		ImageURL:    in.ImageURL,
		Skills:      in.Skills,
		IsAvailable: in.IsAvailable,
	}
	if in.Password != nil {
		hash, err := auth.HashPassword(*in.Password)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, op, err)
		}
		p.PasswordHash = &hash
	}
	if in.Role != nil {
		role, err := model.ParseRole(*in.Role)
		if err != nil {
			return nil, apperr.Validation(op, "%s", err.Error())
		}
		p.Role = &role
	}
	if in.HourlyRate != nil {
		rate := money(*in.HourlyRate)
		p.HourlyRate = &rate
	}
	if in.Rating != nil {
		r := roundRating(*in.Rating)
		p.Rating = &r
	}
	return h.repo.UpdateUser(ctx, id, p)
}

// DeleteUser fails with ConstraintViolation while posts or appointments
// still reference the user.
func (h *Handler) DeleteUser(ctx context.Context, id string) (*model.User, error) {
	if err := requireID("handler.DeleteUser", id); err != nil {
		return nil, err
	}
	return h.repo.DeleteUser(ctx, id)
}

func (h *Handler) User(ctx context.Context, id string) (*model.User, error) {
	if err := requireID("handler.User", id); err != nil {
		return nil, err
	}
	return h.repo.GetUser(ctx, id)
}

func (h *Handler) Users(ctx context.Context, f store.UserFilter) ([]*model.User, error) {
	return h.repo.ListUsers(ctx, f)
}
