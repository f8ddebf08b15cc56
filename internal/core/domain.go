package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type (
	// Date is a calendar day. The time-of-day component is always midnight UTC.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	User struct {
		ID           int64
		Email        string
		PasswordHash string
		CreatedAt    time.Time
	}

	Category struct {
		ID     int64
		UserID int64
		Name   string
	}

	Subcategory struct {
		ID         int64
		CategoryID int64
		Name       string
	}

	Expense struct {
		ID            int64
		UserID        int64
		Date          Date
		Description   string
		Amount        Money
		CategoryID    int64
		SubcategoryID int64 // 0 when no subcategory is set
	}

	Income struct {
		ID          int64
		UserID      int64
		Date        Date
		Description string
		Amount      Money
		CategoryID  int64
	}

	Budget struct {
		ID     int64
		UserID int64
		Name   string
		Start  Date
		End    Date
		Target Money
	}

	Allocation struct {
		BudgetID   int64
		CategoryID int64
		Amount     Money
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidRange       = errors.New("end date before start date")
	ErrEmptyDescription   = errors.New("empty description")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrEmptyName          = errors.New("empty name")
	ErrNameTooLong        = errors.New("name too long (max 100 characters)")
	ErrMissingCategory    = errors.New("missing category")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password too short (min 8 characters)")
)

// NewDate creates a Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) Validate() error {
	if d.IsZero() {
		return ErrInvalidDate
	}
	return nil
}

// String formats the date as YYYY-MM-DD, which is also the storage encoding.
func (d Date) String() string {
	return d.Format("2006-01-02")
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month as 1-12
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func validateDescription(desc string) error {
	if len(strings.TrimSpace(desc)) == 0 {
		return ErrEmptyDescription
	}
	if len(desc) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(e.Description); err != nil {
		return err
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if e.CategoryID <= 0 {
		return ErrMissingCategory
	}
	return nil
}

func (i Income) Validate() error {
	if err := i.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(i.Description); err != nil {
		return err
	}
	if err := i.Amount.Validate(); err != nil {
		return err
	}
	if i.CategoryID <= 0 {
		return ErrMissingCategory
	}
	return nil
}

func (b Budget) Validate() error {
	if len(strings.TrimSpace(b.Name)) == 0 {
		return ErrEmptyName
	}
	if len(b.Name) > 100 {
		return ErrNameTooLong
	}
	if err := b.Start.Validate(); err != nil {
		return fmt.Errorf("invalid start date: %w", err)
	}
	if err := b.End.Validate(); err != nil {
		return fmt.Errorf("invalid end date: %w", err)
	}
	// The range is inclusive on both ends; a one-day budget is valid.
	if b.End.Before(b.Start.Time) {
		return ErrInvalidRange
	}
	if err := b.Target.Validate(); err != nil {
		return err
	}
	return nil
}

// Contains reports whether day falls inside the budget's inclusive range.
func (b Budget) Contains(day Date) bool {
	return !day.Before(b.Start.Time) && !day.After(b.End.Time)
}

func (a Allocation) Validate() error {
	if a.CategoryID <= 0 {
		return ErrMissingCategory
	}
	return a.Amount.Validate()
}

// ValidateEmail performs the minimal structural check used at registration.
// Deliverability is not our problem; the address is only a login identifier.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return ErrInvalidEmail
	}
	if len(email) > 254 {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePassword enforces the registration password policy.
func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}
	return nil
}
