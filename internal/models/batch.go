package models

import "time"

// BatchStatus is the lifecycle of a class batch.
type BatchStatus string

const (
	BatchStatusScheduled BatchStatus = "SCHEDULED"
	BatchStatusOngoing   BatchStatus = "ONGOING"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusCancelled BatchStatus = "CANCELLED"
)

// ClassBatch is a scheduled offering of one course within one period. Its
// identity is the compound key (course, program type, period number, academic
// year) for status SCHEDULED; BatchCode is a display label, not the identity.
type ClassBatch struct {
	ID              string      `db:"id" json:"id"`
	BatchCode       string      `db:"batch_code" json:"batch_code"`
	Name            string      `db:"name" json:"name"`
	CourseID        string      `db:"course_id" json:"course_id"`
	InstructorID    *string     `db:"instructor_id" json:"instructor_id,omitempty"`
	ProgramType     ProgramType `db:"program_type" json:"program_type"`
	PeriodNumber    int         `db:"period_number" json:"period_number"`
	AcademicYear    string      `db:"academic_year" json:"academic_year"`
	StartDate       time.Time   `db:"start_date" json:"start_date"`
	EndDate         time.Time   `db:"end_date" json:"end_date"`
	PaymentDeadline *time.Time  `db:"payment_deadline" json:"payment_deadline,omitempty"`
	LocationType    string      `db:"location_type" json:"location_type"`
	Status          BatchStatus `db:"status" json:"status"`
}

// BatchKey is the compound identity a scheduled batch is resolved by.
type BatchKey struct {
	CourseID     string
	ProgramType  ProgramType
	PeriodNumber int
	AcademicYear string
}

// Instructor is the minimal roster entry batch creation assigns from.
type Instructor struct {
	ID       string `db:"id" json:"id"`
	FullName string `db:"full_name" json:"full_name"`
	Active   bool   `db:"active" json:"active"`
}
