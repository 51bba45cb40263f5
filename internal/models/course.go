package models

// CourseType classifies a course requirement within a program.
type CourseType string

const (
	CourseTypeCore     CourseType = "CORE"
	CourseTypeElective CourseType = "ELECTIVE"
)

// CourseRequirement joins a course to a program. PrerequisiteCourseID is a
// single-predecessor edge: at most one course must be completed first.
type CourseRequirement struct {
	ID                   string     `db:"id" json:"id"`
	ProgramID            string     `db:"program_id" json:"program_id"`
	CourseID             string     `db:"course_id" json:"course_id"`
	CourseCode           string     `db:"course_code" json:"course_code"`
	CourseName           string     `db:"course_name" json:"course_name"`
	Credits              int        `db:"credits" json:"credits"`
	CourseType           CourseType `db:"course_type" json:"course_type"`
	MinGrade             *float64   `db:"min_grade" json:"min_grade,omitempty"`
	PrerequisiteCourseID *string    `db:"prerequisite_course_id" json:"prerequisite_course_id,omitempty"`
}

// RequirementsMeta carries program-level quota rules. MaxElectives of zero
// means unbounded. MinElectives gates graduation, not any single registration.
type RequirementsMeta struct {
	ProgramID        string   `db:"program_id" json:"program_id"`
	MinElectives     int      `db:"min_electives" json:"min_electives"`
	MaxElectives     int      `db:"max_electives" json:"max_electives"`
	TotalCredits     int      `db:"total_credits" json:"total_credits"`
	MinGradeRequired *float64 `db:"min_grade_required" json:"min_grade_required,omitempty"`
}

// SelectableCourse is a catalog course annotated with the student's standing.
type SelectableCourse struct {
	CourseID   string     `json:"course_id"`
	Code       string     `json:"code"`
	Name       string     `json:"name"`
	Credits    int        `json:"credits"`
	CourseType CourseType `json:"course_type"`
	PrereqMet  bool       `json:"prereq_met"`
}

// CourseClassification partitions a program's courses for one student.
// Courses with unmet prerequisites stay in the partition for display but are
// absent from SelectableIDs.
type CourseClassification struct {
	Core          []SelectableCourse `json:"core"`
	Elective      []SelectableCourse `json:"elective"`
	SelectableIDs map[string]bool    `json:"-"`
	MaxElectives  int                `json:"max_electives"`
	MinElectives  int                `json:"min_electives"`
}

// Selectable reports whether the course may be submitted right now.
func (c *CourseClassification) Selectable(courseID string) bool {
	return c.SelectableIDs[courseID]
}
