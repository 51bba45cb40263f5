package models

import "time"

// PeriodStatus is derived from the period's start and end dates, never stored.
type PeriodStatus string

const (
	PeriodStatusUpcoming PeriodStatus = "UPCOMING"
	PeriodStatusOpen     PeriodStatus = "OPEN"
	PeriodStatusClosed   PeriodStatus = "CLOSED"
)

// AcademicPeriod is a time-boxed registration and teaching window. Onsite
// programs call it a term, online programs a block; both share this table
// with PeriodNumber carrying the term or block number.
type AcademicPeriod struct {
	ID                    string      `db:"id" json:"id"`
	PeriodNumber          int         `db:"period_number" json:"period_number"`
	AcademicYear          string      `db:"academic_year" json:"academic_year"`
	ProgramType           ProgramType `db:"program_type" json:"program_type"`
	StartDate             time.Time   `db:"start_date" json:"start_date"`
	EndDate               time.Time   `db:"end_date" json:"end_date"`
	RegistrationStartDate *time.Time  `db:"registration_start_date" json:"registration_start_date,omitempty"`
	RegistrationDeadline  *time.Time  `db:"registration_deadline" json:"registration_deadline,omitempty"`
	EditDeadline          *time.Time  `db:"edit_deadline" json:"edit_deadline,omitempty"`
	// PaymentDeadline is backfilled on first batch creation for the period.
	PaymentDeadline *time.Time `db:"payment_deadline" json:"payment_deadline,omitempty"`
}

// Status derives the lifecycle state from the teaching dates.
func (p *AcademicPeriod) Status(today time.Time) PeriodStatus {
	day := truncateToDay(today)
	if day.Before(truncateToDay(p.StartDate)) {
		return PeriodStatusUpcoming
	}
	if day.After(truncateToDay(p.EndDate)) {
		return PeriodStatusClosed
	}
	return PeriodStatusOpen
}

// RegistrationOpen reports whether the registration window contains today.
// An unset start means the window is already open, an unset deadline means it
// never closes. Both bounds are inclusive at date precision.
func (p *AcademicPeriod) RegistrationOpen(today time.Time) bool {
	day := truncateToDay(today)
	if p.RegistrationStartDate != nil && day.Before(truncateToDay(*p.RegistrationStartDate)) {
		return false
	}
	if p.RegistrationDeadline != nil && day.After(truncateToDay(*p.RegistrationDeadline)) {
		return false
	}
	return true
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// PeriodFilter defines filters supported by the period listing endpoint.
type PeriodFilter struct {
	ProgramType  ProgramType
	AcademicYear string
	Page         int
	PageSize     int
}
