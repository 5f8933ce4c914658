package graph

import (
	"context"

	graphql "github.com/graph-gophers/graphql-go"

	"tutoring-api/internal/handler"
	"tutoring-api/internal/model"
	"tutoring-api/internal/store"
)

// Resolver is the schema root.
type Resolver struct {
	h *handler.Handler
}

func NewResolver(h *handler.Handler) *Resolver {
	return &Resolver{h: h}
}

func optID(id *graphql.ID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func (r *Resolver) Users(ctx context.Context, args struct {
	Role      *string
	Available *bool
}) ([]*userResolver, error) {
	var f store.UserFilter
	if args.Role != nil {
		role := model.Role(*args.Role)
		f.Role = &role
	}
	f.Available = args.Available
	users, err := r.h.Users(ctx, f)
	if err != nil {
		return nil, fail(ctx, err)
	}
	return userList(users), nil
}

func (r *Resolver) Posts(ctx context.Context, args struct {
	AuthorID  *graphql.ID
	Published *bool
}) ([]*postResolver, error) {
	posts, err := r.h.Posts(ctx, store.PostFilter{AuthorID: optID(args.AuthorID), Published: args.Published})
	if err != nil {
		return nil, fail(ctx, err)
	}
	return postList(posts), nil
}

func (r *Resolver) Appointments(ctx context.Context, args struct {
	UserID  *graphql.ID
	TutorID *graphql.ID
	PostID  *graphql.ID
}) ([]*appointmentResolver, error) {
	appts, err := r.h.Appointments(ctx, store.AppointmentFilter{
		UserID:  optID(args.UserID),
		TutorID: optID(args.TutorID),
		PostID:  optID(args.PostID),
	})
	if err != nil {
		return nil, fail(ctx, err)
	}
	return appointmentList(appts), nil
}

type idArgs struct {
	ID graphql.ID
}

func (r *Resolver) User(ctx context.Context, args idArgs) (*userResolver, error) {
	u, err := r.h.User(ctx, string(args.ID))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &userResolver{u}, nil
}

func (r *Resolver) Post(ctx context.Context, args idArgs) (*postResolver, error) {
	p, err := r.h.Post(ctx, string(args.ID))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &postResolver{p}, nil
}

func (r *Resolver) Appointment(ctx context.Context, args idArgs) (*appointmentResolver, error) {
	a, err := r.h.Appointment(ctx, string(args.ID))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &appointmentResolver{a}, nil
}

func (r *Resolver) BookingAttempt(ctx context.Context, args idArgs) (*bookingAttemptResolver, error) {
	b, err := r.h.BookingAttempt(ctx, string(args.ID))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &bookingAttemptResolver{b: b, root: r}, nil
}

type createUserArgs struct {
	Input struct {
		FirstName   string
		LastName    string
		Email       string
		Password    string
		Role        *string
		ImageURL    *string
		HourlyRate  *float64
		Rating      *float64
		Skills      *[]string
		IsAvailable *bool
	}
}

func (r *Resolver) CreateUser(ctx context.Context, args createUserArgs) (*userResolver, error) {
	in := args.Input
	u, err := r.h.CreateUser(ctx, handler.CreateUserInput{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		Password:    in.Password,
		Role:        deref(in.Role),
		ImageURL:    in.ImageURL,
		HourlyRate:  in.HourlyRate,
		Rating:      in.Rating,
		Skills:      derefSlice(in.Skills),
		IsAvailable: in.IsAvailable,
	})
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &userResolver{u}, nil
}

type updateUserArgs struct {
	ID    graphql.ID
	Input struct {
		FirstName   *string
		LastName    *string
		Email       *string
		Password    *string
		Role        *string
		ImageURL    *string
		HourlyRate  *float64
		Rating      *float64
		Skills      *[]string
		IsAvailable *bool
	}
}

func (r *Resolver) UpdateUser(ctx context.Context, args updateUserArgs) (*userResolver, error) {
	in := args.Input
	u, err := r.h.UpdateUser(ctx, string(args.ID), handler.UpdateUserInput{
		FirstName:   in.FirstName,
		LastName:    in.LastName,
		Email:       in.Email,
		Password:    in.Password,
		Role:        in.Role,
		ImageURL:    in.ImageURL,
		HourlyRate:  in.HourlyRate,
		Rating:      in.Rating,
		Skills:      derefSlice(in.Skills),
		IsAvailable: in.IsAvailable,
	})
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &userResolver{u}, nil
}

func (r *Resolver) DeleteUser(ctx context.Context, args idArgs) (*userResolver, error) {
	u, err := r.h.DeleteUser(ctx, string(args.ID))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &userResolver{u}, nil
}

type createPostArgs struct {
	Input struct {
		Title     string
		Content   *string
		Published *bool
		AuthorID  graphql.ID
	}
}

func (r *Resolver) CreatePost(ctx context.Context, args createPostArgs) (*postResolver, error) {
	in := args.Input
	p, err := r.h.CreatePost(ctx, handler.CreatePostInput{
		Title:     in.Title,
		Content:   deref(in.Content),
		Published: in.Published,
		AuthorID:  string(in.AuthorID),
	})
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &postResolver{p}, nil
}

type updatePostArgs struct {
	ID    graphql.ID
	Input struct {
		Title     *string
		Content   *string
		Published *bool
	}
}

func (r *Resolver) UpdatePost(ctx context.Context, args updatePostArgs) (*postResolver, error) {
	p, err := r.h.UpdatePost(ctx, string(args.ID), handler.UpdatePostInput{
		Title:     args.Input.Title,
		Content:   args.Input.Content,
		Published: args.Input.Published,
	})
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &postResolver{p}, nil
}

func (r *Resolver) DeletePost(ctx context.Context, args idArgs) (*postResolver, error) {
	p, err := r.h.DeletePost(ctx, string(args.ID))
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &postResolver{p}, nil
}

type startBookingArgs struct {
	Input struct {
		UserID         graphql.ID
		TutorID        graphql.ID
		PostID         graphql.ID
		Date           string
		IdempotencyKey *string
	}
}

func (r *Resolver) StartBooking(ctx context.Context, args startBookingArgs) (*paymentIntentResolver, error) {
	in := args.Input
	res, err := r.h.StartBooking(ctx, handler.StartBookingInput{
		UserID:         string(in.UserID),
		TutorID:        string(in.TutorID),
		PostID:         string(in.PostID),
		Date:           in.Date,
		IdempotencyKey: deref(in.IdempotencyKey),
	})
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &paymentIntentResolver{res}, nil
}

type createAppointmentArgs struct {
	Input struct {
		PaymentIntentID string
		UserID          *graphql.ID
		TutorID         *graphql.ID
		PostID          *graphql.ID
		Date            *string
	}
}

func (r *Resolver) CreateAppointment(ctx context.Context, args createAppointmentArgs) (*appointmentResolver, error) {
	in := args.Input
	a, err := r.h.CreateAppointment(ctx, handler.CreateAppointmentInput{
		PaymentIntentID: in.PaymentIntentID,
		UserID:          deref(optID(in.UserID)),
		TutorID:         deref(optID(in.TutorID)),
		PostID:          deref(optID(in.PostID)),
		Date:            deref(in.Date),
	})
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &appointmentResolver{a}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefSlice(s *[]string) []string {
	if s == nil {
		return nil
	}
	return *s
}
