package core

import (
	"errors"
	"time"
)

// Frequency is the repetition unit of a recurring template or bill.
type Frequency string

const (
	Daily      Frequency = "daily"
	Weekly     Frequency = "weekly"
	BiWeekly   Frequency = "bi_weekly"
	Monthly    Frequency = "monthly"
	Quarterly  Frequency = "quarterly"
	SemiAnnual Frequency = "semi_annual"
	Annual     Frequency = "annual"
	Custom     Frequency = "custom"
)

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, BiWeekly, Monthly, Quarterly, SemiAnnual, Annual, Custom:
		return true
	}
	return false
}

// months returns the calendar-month step for month-based frequencies, or 0.
func (f Frequency) months() int {
	switch f {
	case Monthly:
		return 1
	case Quarterly:
		return 3
	case SemiAnnual:
		return 6
	case Annual:
		return 12
	}
	return 0
}

// days returns the fixed day step for day-based frequencies, or 0.
func (f Frequency) days() int {
	switch f {
	case Daily:
		return 1
	case Weekly:
		return 7
	case BiWeekly:
		return 14
	}
	return 0
}

// Schedule is the generation state shared by recurring transaction templates
// and bills. NextDueDate only ever advances forward, by exactly one frequency
// step per consumed generation.
type Schedule struct {
	Frequency         Frequency
	IntervalDays      int // custom frequency only
	AnchorDay         int // day-of-month the month-based step clamps toward
	NextDueDate       time.Time
	EndDate           *time.Time
	MaxOccurrences    *int
	OccurrencesCount  int
	AutoGenerate      bool
	GenerateDaysAhead int
	Status            ScheduleStatus
}

func (s Schedule) Validate() error {
	if !s.Frequency.Valid() {
		return Invalid("frequency", ErrInvalidFrequency)
	}
	if s.Frequency == Custom && s.IntervalDays < 1 {
		return Invalid("interval_days", errors.New("custom frequency requires a positive interval"))
	}
	if s.NextDueDate.IsZero() {
		return Invalid("next_due_date", errors.New("next due date cannot be zero"))
	}
	if s.EndDate != nil && s.EndDate.Before(s.NextDueDate) {
		return Invalid("end_date", ErrInvalidDateRange)
	}
	if s.MaxOccurrences != nil && *s.MaxOccurrences < 1 {
		return Invalid("max_occurrences", errors.New("max occurrences must be positive"))
	}
	return nil
}

// NextDueDate advances due one frequency step from the CURRENT due date, not
// from "now", so skipped periods are never compressed. Month-based steps land
// on the anchor day, clamped to the target month's length: an anchor of 31
// yields Jan 31 -> Feb 29 -> Mar 31 without skipping or repeating a month.
func NextDueDate(current time.Time, freq Frequency, intervalDays, anchorDay int) time.Time {
	if d := freq.days(); d > 0 {
		return current.AddDate(0, 0, d)
	}
	if freq == Custom {
		if intervalDays < 1 {
			intervalDays = 1
		}
		return current.AddDate(0, 0, intervalDays)
	}
	months := freq.months()
	if months == 0 {
		return current.AddDate(0, 0, 1)
	}
	if anchorDay < 1 {
		anchorDay = current.Day()
	}
	year, month, _ := current.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, current.Location()).AddDate(0, months, 0)
	day := anchorDay
	if last := daysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, 0, 0, 0, 0, current.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Advance consumes one generation: it bumps the occurrence count and moves
// the due date forward by one frequency step.
func (s *Schedule) Advance() {
	s.OccurrencesCount++
	s.NextDueDate = NextDueDate(s.NextDueDate, s.Frequency, s.IntervalDays, s.AnchorDay)
}

// Ended reports whether the schedule's end condition holds: the next due
// date has moved past the end date, or the occurrence cap is reached.
func (s Schedule) Ended() bool {
	if s.EndDate != nil && s.NextDueDate.After(*s.EndDate) {
		return true
	}
	if s.MaxOccurrences != nil && s.OccurrencesCount >= *s.MaxOccurrences {
		return true
	}
	return false
}

// DueForGeneration reports whether a generation event should fire: the
// schedule is active with auto-generate enabled, the end condition does not
// hold, and the due date falls within the look-ahead window.
func (s Schedule) DueForGeneration(today time.Time) bool {
	if s.Status != ScheduleActive || !s.AutoGenerate {
		return false
	}
	if s.Ended() {
		return false
	}
	cutoff := today.AddDate(0, 0, s.GenerateDaysAhead)
	return !s.NextDueDate.After(cutoff)
}

// TransitionTo enforces the schedule state machine:
// active -> {paused, cancelled, completed}, paused -> {active, cancelled},
// cancelled and completed terminal.
func (s *Schedule) TransitionTo(next ScheduleStatus) error {
	switch s.Status {
	case ScheduleActive:
		if next == SchedulePaused || next == ScheduleCancelled || next == ScheduleCompleted {
			s.Status = next
			return nil
		}
	case SchedulePaused:
		if next == ScheduleActive || next == ScheduleCancelled {
			s.Status = next
			return nil
		}
	case ScheduleCancelled, ScheduleCompleted:
		return ErrTerminalStatus
	}
	return errors.New("invalid status transition")
}

// RecurringTransaction is a template that generates concrete transactions on
// a schedule.
type RecurringTransaction struct {
	ID                int64
	UserID            int64
	AccountID         int64
	CategoryID        *int64
	Type              TransactionType
	Amount            Money
	Description       string
	Schedule          Schedule
	GenerateAsPending bool
	TotalGenerated    Money
	LastGeneratedAt   *time.Time
	CreatedAt         time.Time
}

func (rt RecurringTransaction) Validate() error {
	if err := rt.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	if rt.Type != TypeIncome && rt.Type != TypeExpense {
		return Invalid("type", ErrInvalidType)
	}
	return rt.Schedule.Validate()
}

// Bill is a recurring payment obligation with payment history and optional
// auto-pay from a linked account.
type Bill struct {
	ID              int64
	UserID          int64
	AccountID       int64
	CategoryID      *int64
	Name            string
	Amount          Money
	Schedule        Schedule
	AutoPay         bool
	IsVariable      bool
	LastPaidDate    *time.Time
	LastPaidAmount  Money
	TotalPaid       Money
	PaymentCount    int
	AverageAmount   Money
	MissedPayments  int
	LastMissedDue   *time.Time
	ReminderDays    int
	CreatedAt       time.Time
}

func (b Bill) Validate() error {
	if b.Name == "" {
		return Invalid("name", ErrEmptyName)
	}
	if err := b.Amount.Validate(); err != nil {
		return Invalid("amount", err)
	}
	return b.Schedule.Validate()
}

// RecordPayment folds one payment into the bill's history: last paid
// date/amount, running total and count, the rolling average for variable
// bills, and a missed-payments reset. The due date advance is a schedule
// concern and happens separately.
func (b *Bill) RecordPayment(amount Money, date time.Time) {
	b.LastPaidDate = &date
	b.LastPaidAmount = amount
	b.TotalPaid = b.TotalPaid.Add(amount)
	b.PaymentCount++
	if b.IsVariable && b.PaymentCount > 0 {
		b.AverageAmount = Money{Cents: b.TotalPaid.Cents / int64(b.PaymentCount)}
	}
	b.MissedPayments = 0
}
