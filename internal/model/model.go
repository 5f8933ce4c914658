package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleTutor   Role = "TUTOR"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleStudent, RoleTutor:
		return r, nil
	case "":
		return RoleStudent, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	Role         Role
	ImageURL     *string
	HourlyRate   decimal.NullDecimal
	Rating       *float64
	Skills       []string
	IsAvailable  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Post struct {
	ID        string
	Title     string
	Content   string
	Published bool
	AuthorID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Appointment struct {
	ID        string
	Date      Date
	UserID    string
	TutorID   string
	PostID    string
	BookingID string
	CreatedAt time.Time
}

// Date is a calendar day with no time-of-day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const DateLayout = "2006-01-02"

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	return DateOf(t), nil
}

func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) String() string { return d.Time().Format(DateLayout) }
