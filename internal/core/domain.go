package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   FrequencyType = "daily"
	Weekly  FrequencyType = "weekly"
	Monthly FrequencyType = "monthly"
	Yearly  FrequencyType = "yearly"
)

// WeekOfMonthLast selects the last matching weekday of a month.
const WeekOfMonthLast = 4

type (
	FrequencyType string

	// FrequencyRule describes how often a recurring item repeats.
	// DayOfWeek refines weekly, monthly and yearly rules; WeekOfMonth refines
	// monthly and yearly rules; MonthOfYear (0-11) refines yearly rules only.
	FrequencyRule struct {
		Type        FrequencyType
		Interval    int
		DayOfMonth  *int
		DayOfWeek   *time.Weekday
		WeekOfMonth *int
		MonthOfYear *int
	}

	RecurringItem struct {
		ID          string
		AccountID   string
		Title       string
		Description string
		Amount      float64
		BeginDate   time.Time
		EndDate     *time.Time
		Frequency   FrequencyRule
	}

	Expense struct {
		RecurringItem
		TaxRate     float64
		SubsidyRate float64
	}

	Income struct {
		RecurringItem
		TaxRate float64
	}

	Loan struct {
		RecurringItem
		PlanAmount        float64 // periodic payment cap
		Principal         float64
		InterestRate      float64 // annual
		InterestFrequency FrequencyType
		SubsidyRate       float64
	}

	Transfer struct {
		RecurringItem
		SourceAccountID      string
		DestinationAccountID string
	}

	// CommutePass is a weekly pass bought on a fixed weekday at a fixed time.
	CommutePass struct {
		ID          string
		AccountID   string
		Title       string
		Description string
		Amount      float64
		TaxRate     float64
		SubsidyRate float64
		BeginDate   time.Time
		EndDate     *time.Time
		DayOfWeek   time.Weekday
		StartTime   time.Duration // offset from midnight
	}

	// Payroll is an already computed pay slip.
	Payroll struct {
		ID          string
		AccountID   string
		Title       string
		Description string
		Date        time.Time
		Amount      float64
		TaxRate     float64
	}

	WishlistItem struct {
		ID            string
		AccountID     string
		Title         string
		Description   string
		Amount        float64
		TaxRate       float64
		AvailableDate *time.Time
	}
)

var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidRate      = errors.New("invalid rate")
	ErrInvalidFrequency = errors.New("invalid frequency type")
	ErrInvalidInterval  = errors.New("invalid interval")
	ErrInvalidDayOfWeek = errors.New("invalid day of week")
	ErrEmptyTitle       = errors.New("empty title")
	ErrEmptyID          = errors.New("empty id")
	ErrDuplicateID      = errors.New("duplicate id")
	ErrEmptyAccount     = errors.New("empty account id")
	ErrZeroDate         = errors.New("date cannot be zero")
	ErrEndBeforeBegin   = errors.New("end date must not be before begin date")
)

// IsValid reports whether t is one of the supported frequency types.
func (t FrequencyType) IsValid() bool {
	switch t {
	case Daily, Weekly, Monthly, Yearly:
		return true
	default:
		return false
	}
}

func (t FrequencyType) String() string {
	return string(t)
}

// Step returns the interval, treating anything below one as one.
func (r FrequencyRule) Step() int {
	if r.Interval < 1 {
		return 1
	}
	return r.Interval
}

func (r FrequencyRule) Validate() error {
	if !r.Type.IsValid() {
		return ErrInvalidFrequency
	}
	if r.Interval < 0 {
		return ErrInvalidInterval
	}
	if r.DayOfMonth != nil && (*r.DayOfMonth < 1 || *r.DayOfMonth > 31) {
		return errors.New("day of month must be between 1 and 31")
	}
	if r.DayOfWeek != nil && (*r.DayOfWeek < time.Sunday || *r.DayOfWeek > time.Saturday) {
		return ErrInvalidDayOfWeek
	}
	if r.WeekOfMonth != nil && (*r.WeekOfMonth < 0 || *r.WeekOfMonth > WeekOfMonthLast) {
		return errors.New("week of month must be between 0 and 4")
	}
	if r.MonthOfYear != nil && (*r.MonthOfYear < 0 || *r.MonthOfYear > 11) {
		return errors.New("month of year must be between 0 and 11")
	}
	return nil
}

func (ri RecurringItem) Validate() error {
	if strings.TrimSpace(ri.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(ri.AccountID) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(ri.Title) == "" {
		return ErrEmptyTitle
	}
	if len(ri.Title) > 200 {
		return errors.New("title too long (max 200 characters)")
	}
	if ri.Amount < 0 {
		return ErrInvalidAmount
	}
	if ri.BeginDate.IsZero() {
		return fmt.Errorf("invalid begin date: %w", ErrZeroDate)
	}
	if ri.EndDate != nil && ri.EndDate.Before(ri.BeginDate) {
		return ErrEndBeforeBegin
	}
	if err := ri.Frequency.Validate(); err != nil {
		return fmt.Errorf("invalid frequency: %w", err)
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.RecurringItem.Validate(); err != nil {
		return err
	}
	if !validRate(e.TaxRate) || !validRate(e.SubsidyRate) {
		return ErrInvalidRate
	}
	return nil
}

func (i Income) Validate() error {
	if err := i.RecurringItem.Validate(); err != nil {
		return err
	}
	if !validRate(i.TaxRate) {
		return ErrInvalidRate
	}
	return nil
}

// Validate rejects loans that could never amortize: a non-positive plan
// amount or a negative interest rate.
func (l Loan) Validate() error {
	if err := l.RecurringItem.Validate(); err != nil {
		return err
	}
	if l.PlanAmount <= 0 || l.Principal < 0 {
		return ErrInvalidAmount
	}
	if l.InterestRate < 0 || !validRate(l.SubsidyRate) {
		return ErrInvalidRate
	}
	if !l.InterestFrequency.IsValid() {
		return ErrInvalidFrequency
	}
	return nil
}

func (t Transfer) Validate() error {
	if err := t.RecurringItem.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.SourceAccountID) == "" || strings.TrimSpace(t.DestinationAccountID) == "" {
		return ErrEmptyAccount
	}
	if t.SourceAccountID == t.DestinationAccountID {
		return errors.New("transfer source and destination must differ")
	}
	return nil
}

func (c CommutePass) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(c.AccountID) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(c.Title) == "" {
		return ErrEmptyTitle
	}
	if c.Amount < 0 {
		return ErrInvalidAmount
	}
	if !validRate(c.TaxRate) || !validRate(c.SubsidyRate) {
		return ErrInvalidRate
	}
	if c.BeginDate.IsZero() {
		return ErrZeroDate
	}
	if c.EndDate != nil && c.EndDate.Before(c.BeginDate) {
		return ErrEndBeforeBegin
	}
	if c.DayOfWeek < time.Sunday || c.DayOfWeek > time.Saturday {
		return ErrInvalidDayOfWeek
	}
	if c.StartTime < 0 || c.StartTime >= 24*time.Hour {
		return errors.New("start time must be within a day")
	}
	return nil
}

// StartOn returns the pass start time as wall-clock time on day's date, in
// the location of the begin date.
func (c CommutePass) StartOn(day time.Time) time.Time {
	y, m, d := day.Date()
	secs := int(c.StartTime / time.Second)
	return time.Date(y, m, d, secs/3600, secs/60%60, secs%60, 0, c.BeginDate.Location())
}

func (p Payroll) Validate() error {
	if strings.TrimSpace(p.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(p.AccountID) == "" {
		return ErrEmptyAccount
	}
	if p.Date.IsZero() {
		return ErrZeroDate
	}
	if !validRate(p.TaxRate) {
		return ErrInvalidRate
	}
	return nil
}

func (w WishlistItem) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return ErrEmptyID
	}
	if strings.TrimSpace(w.AccountID) == "" {
		return ErrEmptyAccount
	}
	if strings.TrimSpace(w.Title) == "" {
		return ErrEmptyTitle
	}
	if w.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !validRate(w.TaxRate) {
		return ErrInvalidRate
	}
	return nil
}

func validRate(r float64) bool {
	return r >= 0 && r <= 1
}
