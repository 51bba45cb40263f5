package models

// ProgramType distinguishes onsite (term-based) from online (block-based) programs.
type ProgramType string

const (
	ProgramTypeOnsite ProgramType = "ONSITE"
	ProgramTypeOnline ProgramType = "ONLINE"
)

// Program identifies a curriculum a student applies to.
type Program struct {
	ID              string      `db:"id" json:"id"`
	Name            string      `db:"name" json:"name"`
	Type            ProgramType `db:"type" json:"type"`
	RegistrationFee float64     `db:"registration_fee" json:"registration_fee"`
	FeeStructureID  *string     `db:"fee_structure_id" json:"fee_structure_id,omitempty"`
}

// ApplicationStatus is the review state of a student's program application.
// Approval is a registration precondition; the application workflow itself is
// owned by the admissions module.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "PENDING"
	ApplicationStatusApproved ApplicationStatus = "APPROVED"
	ApplicationStatusRejected ApplicationStatus = "REJECTED"
)
