package booking

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"tutoring-api/internal/apperr"
	"tutoring-api/internal/model"
	"tutoring-api/internal/payment"
	"tutoring-api/internal/store"
)

type memRepo struct {
	mu       sync.Mutex
	users    map[string]*model.User
	posts    map[string]*model.Post
	appts    map[string]*model.Appointment
	attempts map[string]*model.BookingAttempt
	// completeErrs are returned, in order, by the next CompleteBooking calls.
	completeErrs  []error
	completeCalls int
}

func newMemRepo() *memRepo {
	rate := decimal.NewNullDecimal(decimal.RequireFromString("45.50"))
	return &memRepo{
		users: map[string]*model.User{
			"tutor":  {ID: "tutor", FirstName: "Tess", Role: model.RoleTutor, IsAvailable: true, HourlyRate: rate},
			"tutor2": {ID: "tutor2", FirstName: "Tom", Role: model.RoleTutor, IsAvailable: true},
			"amy":    {ID: "amy", FirstName: "Amy", Role: model.RoleStudent, IsAvailable: true},
			"bob":    {ID: "bob", FirstName: "Bob", Role: model.RoleStudent, IsAvailable: true},
		},
		posts: map[string]*model.Post{
			"algebra": {ID: "algebra", Title: "Algebra", AuthorID: "tutor"},
			"physics": {ID: "physics", Title: "Physics", AuthorID: "tutor2"},
		},
		appts:    map[string]*model.Appointment{},
		attempts: map[string]*model.BookingAttempt{},
	}
}

func (m *memRepo) GetUser(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("mem.GetUser", "user")
	}
	return u, nil
}

func (m *memRepo) GetPost(_ context.Context, id string) (*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	if !ok {
		return nil, apperr.NotFound("mem.GetPost", "post")
	}
	return p, nil
}

func (m *memRepo) GetAppointment(_ context.Context, id string) (*model.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("mem.GetAppointment", "appointment")
	}
	c := *a
	return &c, nil
}

func (m *memRepo) SlotTaken(_ context.Context, tutorID string, date model.Date) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.appts {
		if a.TutorID == tutorID && a.Date == date {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) CreateBookingAttempt(_ context.Context, b *model.BookingAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[b.ID]; ok {
		return apperr.Constraint("mem.CreateBookingAttempt", "duplicate booking id", nil)
	}
	for _, a := range m.attempts {
		if a.TutorID == b.TutorID && a.Date == b.Date && a.State != model.BookingAbandoned {
			return apperr.Constraint("mem.CreateBookingAttempt", "tutor slot is already held by another booking", nil)
		}
	}
	now := time.Now()
	b.CreatedAt, b.UpdatedAt = now, now
	c := *b
	m.attempts[b.ID] = &c
	return nil
}

func (m *memRepo) GetBookingAttempt(_ context.Context, id string) (*model.BookingAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, apperr.NotFound("mem.GetBookingAttempt", "booking attempt")
	}
	c := *a
	return &c, nil
}

func (m *memRepo) BookingAttemptByIntent(_ context.Context, intentID string) (*model.BookingAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.IntentID != nil && *a.IntentID == intentID {
			c := *a
			return &c, nil
		}
	}
	return nil, apperr.NotFound("mem.BookingAttemptByIntent", "booking attempt")
}

func (m *memRepo) TransitionBooking(_ context.Context, id string, from, to model.BookingState, u store.BookingUpdate) (*model.BookingAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.State != from {
		return nil, store.ErrStateChanged
	}
	if from == model.BookingAbandoned && to != model.BookingAbandoned {
		for _, x := range m.attempts {
			if x.ID != id && x.TutorID == a.TutorID && x.Date == a.Date && x.State != model.BookingAbandoned {
				return nil, apperr.Constraint("mem.TransitionBooking", "tutor slot is already held by another booking", nil)
			}
		}
	}
	a.State = to
	if u.IntentID != nil {
		a.IntentID = u.IntentID
	}
	if u.Amount != nil {
		a.Amount = *u.Amount
	}
	if u.Currency != nil {
		a.Currency = *u.Currency
	}
	if u.Failure != nil {
		a.Failure = u.Failure
	}
	a.UpdatedAt = time.Now()
	c := *a
	return &c, nil
}

func (m *memRepo) CompleteBooking(_ context.Context, attemptID string, from model.BookingState, appt *model.Appointment) (*model.BookingAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completeCalls++
	if len(m.completeErrs) > 0 {
		err := m.completeErrs[0]
		m.completeErrs = m.completeErrs[1:]
		return nil, err
	}
	a, ok := m.attempts[attemptID]
	if !ok || a.State != from {
		return nil, store.ErrStateChanged
	}
	for _, x := range m.appts {
		if x.TutorID == appt.TutorID && x.Date == appt.Date {
			return nil, apperr.Constraint("mem.CompleteBooking", "tutor is already booked on this date", nil)
		}
	}
	appt.CreatedAt = time.Now()
	c := *appt
	m.appts[appt.ID] = &c
	a.State = model.BookingBooked
	a.AppointmentID = &c.ID
	a.Failure = nil
	a.UpdatedAt = time.Now()
	out := *a
	return &out, nil
}

func (m *memRepo) StaleBookingAttempts(_ context.Context, states []model.BookingState, before time.Time, limit int) ([]*model.BookingAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.BookingAttempt
	for _, a := range m.attempts {
		for _, s := range states {
			if a.State == s && a.UpdatedAt.Before(before) {
				c := *a
				out = append(out, &c)
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRepo) attempt(id string) model.BookingAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.attempts[id]
}

func (m *memRepo) age(id string, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[id].UpdatedAt = m.attempts[id].UpdatedAt.Add(-d)
}

func (m *memRepo) appointmentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.appts)
}

type fakePay struct {
	mu       sync.Mutex
	intents  map[string]*payment.Intent
	byKey    map[string]string
	created  []payment.IntentRequest
	canceled []string
	err      error
	// chargeOnCancel makes the charge land just before the next cancel.
	chargeOnCancel bool
}

func newFakePay() *fakePay {
	return &fakePay{intents: map[string]*payment.Intent{}, byKey: map[string]string{}}
}

func (f *fakePay) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if id, ok := f.byKey[req.IdempotencyKey]; ok {
		c := *f.intents[id]
		return &c, nil
	}
	f.created = append(f.created, req)
	id := fmt.Sprintf("pi_%d", len(f.created))
	in := &payment.Intent{
		ID:           id,
		ClientSecret: id + "_secret",
		Amount:       req.Amount,
		Currency:     req.Currency,
		Status:       payment.StatusRequiresAction,
	}
	f.intents[id] = in
	f.byKey[req.IdempotencyKey] = id
	c := *in
	return &c, nil
}

func (f *fakePay) InspectIntent(_ context.Context, id string) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	if !ok {
		return nil, apperr.NotFound("fake.InspectIntent", "payment intent")
	}
	c := *in
	return &c, nil
}

func (f *fakePay) CancelIntent(_ context.Context, id string) (*payment.Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	in, ok := f.intents[id]
	if !ok {
		return nil, apperr.NotFound("fake.CancelIntent", "payment intent")
	}
	if f.chargeOnCancel {
		f.chargeOnCancel = false
		in.Status = payment.StatusSucceeded
	}
	if in.Status == payment.StatusSucceeded {
		return nil, apperr.Validation("fake.CancelIntent", "intent already succeeded")
	}
	in.Status = payment.StatusCanceled
	f.canceled = append(f.canceled, id)
	c := *in
	return &c, nil
}

func (f *fakePay) Currency() string { return "usd" }

func (f *fakePay) setStatus(id string, s payment.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[id].Status = s
}

func (f *fakePay) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}
