package graph

import (
	"context"
	"time"

	graphql "github.com/graph-gophers/graphql-go"

	"tutoring-api/internal/booking"
	"tutoring-api/internal/loader"
	"tutoring-api/internal/model"
)

func timestamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

type userResolver struct{ u *model.User }

func (r *userResolver) ID() graphql.ID    { return graphql.ID(r.u.ID) }
func (r *userResolver) FirstName() string { return r.u.FirstName }
func (r *userResolver) LastName() string  { return r.u.LastName }
func (r *userResolver) Email() string     { return r.u.Email }
func (r *userResolver) Role() string      { return string(r.u.Role) }
func (r *userResolver) ImageURL() *string { return r.u.ImageURL }
func (r *userResolver) Rating() *float64  { return r.u.Rating }
func (r *userResolver) Skills() []string  { return r.u.Skills }
func (r *userResolver) IsAvailable() bool { return r.u.IsAvailable }
func (r *userResolver) CreatedAt() string { return timestamp(r.u.CreatedAt) }
func (r *userResolver) UpdatedAt() string { return timestamp(r.u.UpdatedAt) }

func (r *userResolver) HourlyRate() *float64 {
	if !r.u.HourlyRate.Valid {
		return nil
	}
	f, _ := r.u.HourlyRate.Decimal.Float64()
	return &f
}

func (r *userResolver) Posts(ctx context.Context) (*[]*postResolver, error) {
	l, err := loader.For(ctx)
	if err != nil {
		return nil, fail(ctx, err)
	}
	posts, err := l.PostsByAuthor(ctx, r.u.ID)
	if err != nil {
		return nil, fail(ctx, err)
	}
	out := postList(posts)
	return &out, nil
}

func (r *userResolver) UserAppointments(ctx context.Context) (*[]*appointmentResolver, error) {
	return relatedAppointments(ctx, r.u.ID, (*loader.Loaders).AppointmentsByUser)
}

func (r *userResolver) TutorAppointments(ctx context.Context) (*[]*appointmentResolver, error) {
	return relatedAppointments(ctx, r.u.ID, (*loader.Loaders).AppointmentsByTutor)
}

type postResolver struct{ p *model.Post }

func (r *postResolver) ID() graphql.ID       { return graphql.ID(r.p.ID) }
func (r *postResolver) Title() string        { return r.p.Title }
func (r *postResolver) Content() string      { return r.p.Content }
func (r *postResolver) Published() bool      { return r.p.Published }
func (r *postResolver) AuthorID() graphql.ID { return graphql.ID(r.p.AuthorID) }
func (r *postResolver) CreatedAt() string    { return timestamp(r.p.CreatedAt) }
func (r *postResolver) UpdatedAt() string    { return timestamp(r.p.UpdatedAt) }

func (r *postResolver) Author(ctx context.Context) (*userResolver, error) {
	return relatedUser(ctx, r.p.AuthorID)
}

func (r *postResolver) Appointments(ctx context.Context) (*[]*appointmentResolver, error) {
	return relatedAppointments(ctx, r.p.ID, (*loader.Loaders).AppointmentsByPost)
}

type appointmentResolver struct{ a *model.Appointment }

func (r *appointmentResolver) ID() graphql.ID        { return graphql.ID(r.a.ID) }
func (r *appointmentResolver) Date() string          { return r.a.Date.String() }
func (r *appointmentResolver) UserID() graphql.ID    { return graphql.ID(r.a.UserID) }
func (r *appointmentResolver) TutorID() graphql.ID   { return graphql.ID(r.a.TutorID) }
func (r *appointmentResolver) PostID() graphql.ID    { return graphql.ID(r.a.PostID) }
func (r *appointmentResolver) BookingID() graphql.ID { return graphql.ID(r.a.BookingID) }
func (r *appointmentResolver) CreatedAt() string     { return timestamp(r.a.CreatedAt) }

func (r *appointmentResolver) User(ctx context.Context) (*userResolver, error) {
	return relatedUser(ctx, r.a.UserID)
}

func (r *appointmentResolver) Tutor(ctx context.Context) (*userResolver, error) {
	return relatedUser(ctx, r.a.TutorID)
}

func (r *appointmentResolver) Post(ctx context.Context) (*postResolver, error) {
	l, err := loader.For(ctx)
	if err != nil {
		return nil, fail(ctx, err)
	}
	p, err := l.Post(ctx, r.a.PostID)
	if err != nil {
		return nil, fail(ctx, err)
	}
	if p == nil {
		return nil, nil
	}
	return &postResolver{p}, nil
}

type bookingAttemptResolver struct {
	b    *model.BookingAttempt
	root *Resolver
}

func (r *bookingAttemptResolver) ID() graphql.ID           { return graphql.ID(r.b.ID) }
func (r *bookingAttemptResolver) State() string            { return string(r.b.State) }
func (r *bookingAttemptResolver) UserID() graphql.ID       { return graphql.ID(r.b.UserID) }
func (r *bookingAttemptResolver) TutorID() graphql.ID      { return graphql.ID(r.b.TutorID) }
func (r *bookingAttemptResolver) PostID() graphql.ID       { return graphql.ID(r.b.PostID) }
func (r *bookingAttemptResolver) Date() string             { return r.b.Date.String() }
func (r *bookingAttemptResolver) PaymentIntentID() *string { return r.b.IntentID }
func (r *bookingAttemptResolver) Amount() int32            { return int32(r.b.Amount) }
func (r *bookingAttemptResolver) Currency() string         { return r.b.Currency }
func (r *bookingAttemptResolver) Failure() *string         { return r.b.Failure }
func (r *bookingAttemptResolver) CreatedAt() string        { return timestamp(r.b.CreatedAt) }
func (r *bookingAttemptResolver) UpdatedAt() string        { return timestamp(r.b.UpdatedAt) }

func (r *bookingAttemptResolver) Appointment(ctx context.Context) (*appointmentResolver, error) {
	if r.b.AppointmentID == nil {
		return nil, nil
	}
	a, err := r.root.h.Appointment(ctx, *r.b.AppointmentID)
	if err != nil {
		return nil, fail(ctx, err)
	}
	return &appointmentResolver{a}, nil
}

type paymentIntentResolver struct{ res *booking.StartResult }

func (r *paymentIntentResolver) BookingID() graphql.ID   { return graphql.ID(r.res.BookingID) }
func (r *paymentIntentResolver) PaymentIntentID() string { return r.res.IntentID }
func (r *paymentIntentResolver) ClientSecret() string    { return r.res.ClientSecret }
func (r *paymentIntentResolver) Amount() int32           { return int32(r.res.Amount) }
func (r *paymentIntentResolver) Currency() string        { return r.res.Currency }
func (r *paymentIntentResolver) State() string           { return string(r.res.State) }

func relatedUser(ctx context.Context, id string) (*userResolver, error) {
	l, err := loader.For(ctx)
	if err != nil {
		return nil, fail(ctx, err)
	}
	u, err := l.User(ctx, id)
	if err != nil {
		return nil, fail(ctx, err)
	}
	if u == nil {
		return nil, nil
	}
	return &userResolver{u}, nil
}

func relatedAppointments(ctx context.Context, key string, load func(*loader.Loaders, context.Context, string) ([]*model.Appointment, error)) (*[]*appointmentResolver, error) {
	l, err := loader.For(ctx)
	if err != nil {
		return nil, fail(ctx, err)
	}
	appts, err := load(l, ctx, key)
	if err != nil {
		return nil, fail(ctx, err)
	}
	out := appointmentList(appts)
	return &out, nil
}

func userList(us []*model.User) []*userResolver {
	out := make([]*userResolver, len(us))
	for i, u := range us {
		out[i] = &userResolver{u}
	}
	return out
}

func postList(ps []*model.Post) []*postResolver {
	out := make([]*postResolver, len(ps))
	for i, p := range ps {
		out[i] = &postResolver{p}
	}
	return out
}

func appointmentList(as []*model.Appointment) []*appointmentResolver {
	out := make([]*appointmentResolver, len(as))
	for i, a := range as {
		out[i] = &appointmentResolver{a}
	}
	return out
}
