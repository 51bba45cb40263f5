package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment links a student to a class batch for one period. Exactly one of
// TermID and BlockID is set, matching the program type: onsite enrollments
// reference a term, online enrollments a block.
type Enrollment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	ClassID        string           `db:"class_id" json:"class_id"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Status         EnrollmentStatus `db:"status" json:"status"`
	ProgramType    ProgramType      `db:"program_type" json:"program_type"`
	TermID         *string          `db:"term_id" json:"term_id,omitempty"`
	BlockID        *string          `db:"block_id" json:"block_id,omitempty"`
}

// PeriodRef returns whichever of term or block the enrollment is tied to.
func (e *Enrollment) PeriodRef() string {
	if e.TermID != nil {
		return *e.TermID
	}
	if e.BlockID != nil {
		return *e.BlockID
	}
	return ""
}

// EnrollmentDetail enriches Enrollment with batch and course info for
// listings and statement exports.
type EnrollmentDetail struct {
	Enrollment
	BatchCode  string `db:"batch_code" json:"batch_code"`
	BatchName  string `db:"batch_name" json:"batch_name"`
	CourseID   string `db:"course_id" json:"course_id"`
	CourseCode string `db:"course_code" json:"course_code"`
	CourseName string `db:"course_name" json:"course_name"`
}
