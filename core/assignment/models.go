package assignment

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
)

const (
	DefaultMaxPoints = 100

	SolutionNone      = "none"
	SolutionGenerated = "generated"
	SolutionApproved  = "approved"
	SolutionRejected  = "rejected"
)

var (
	// OrderingFields lists the fields assignments may be ordered by.
	OrderingFields = []string{"id", "title", "due_date", "max_points", "created_at"}

	dueDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}
	errBadDueDate  = errors.New("invalid date, expected YYYY-MM-DD or YYYY-MM-DDTHH:MM:SS")
)

type Assignment struct {
	ID                  int        `json:"id"`
	Title               string     `json:"title"`
	Description         string     `json:"description"`
	DueDate             *time.Time `json:"due_date"`
	MaxPoints           int        `json:"max_points"`
	ProfessorID         int        `json:"professor_id"`
	CreatedAt           time.Time  `json:"created_at"`
	QuestionFilePath    string     `json:"question_file_path"`
	QuestionText        string     `json:"question_text"`
	ZipFilePath         string     `json:"zip_file_path"`
	ExtractedFolderPath string     `json:"extracted_folder_path"`
	Rubric              string     `json:"rubric"`
	IdealSolution       string     `json:"ideal_solution"`
	SolutionStatus      string     `json:"solution_status"`
	SolutionFeedback    string     `json:"solution_feedback"`

	// derived from the latest grading results
	AverageScore *float64 `json:"average_score"`
	IsGraded     bool     `json:"is_graded"`
}

// HasSolution reports whether a usable reference solution is stored.
func (a Assignment) HasSolution() bool {
	return a.IdealSolution != "" && (a.SolutionStatus == SolutionGenerated || a.SolutionStatus == SolutionApproved)
}

// Prompt returns the question the solution generator works from.
func (a Assignment) Prompt() string {
	if a.QuestionText != "" {
		return a.QuestionText
	}
	if a.Description != "" {
		return a.Description
	}
	return a.Title
}

// ParseDueDate accepts RFC3339, `YYYY-MM-DDTHH:MM:SS` and `YYYY-MM-DD` dates. Results are UTC.
func ParseDueDate(s string) (*time.Time, error) {
	s = core.CleanString(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errBadDueDate
}

func dueDateError() error {
	return core.NewValidationError(errBadDueDate, core.FieldError{Field: "due_date", Error: errBadDueDate.Error()})
}

// NewAssignment contains information needed to create a new Assignment.
// Form tags allow binding from the question file multipart upload.
type NewAssignment struct {
	Title       string `json:"title" form:"title" validate:"required,notblank,max=200"`
	Description string `json:"description" form:"description"`
	DueDate     string `json:"due_date" form:"due_date"`
	MaxPoints   int    `json:"max_points" form:"max_points" validate:"gte=0"`
	ProfessorID int    `json:"professor_id" form:"professor_id" validate:"required,gt=0"`
	Rubric      string `json:"rubric" form:"rubric"`

	dueDate *time.Time
}

func (na *NewAssignment) Validate(validate *validator.Validate) error {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.Rubric = core.CleanString(na.Rubric)
	if na.MaxPoints == 0 {
		na.MaxPoints = DefaultMaxPoints
	}

	if err := validate.Struct(na); err != nil {
		return err
	}
	due, err := ParseDueDate(na.DueDate)
	if err != nil {
		return dueDateError()
	}
	na.dueDate = due
	return nil
}

// UpdateAssignment defines what information may be provided to modify an existing Assignment.
// Nil fields are left untouched.
type UpdateAssignment struct {
	Title       *string `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string `json:"description"`
	DueDate     *string `json:"due_date"`
	MaxPoints   *int    `json:"max_points" validate:"omitempty,gt=0"`
	Rubric      *string `json:"rubric"`

	dueDate *time.Time
}

func (ua *UpdateAssignment) Validate(validate *validator.Validate) error {
	if ua.Title != nil {
		title := core.CleanString(*ua.Title)
		ua.Title = &title
	}

	if err := validate.Struct(ua); err != nil {
		return err
	}
	if ua.DueDate != nil {
		due, err := ParseDueDate(*ua.DueDate)
		if err != nil {
			return dueDateError()
		}
		ua.dueDate = due
	}
	return nil
}

// VerifySolution is a professor's review of the generated reference solution.
type VerifySolution struct {
	Approved *bool  `json:"approved" validate:"required"`
	Feedback string `json:"feedback" validate:"max=2000"`
}

func (vs *VerifySolution) Validate(validate *validator.Validate) error {
	vs.Feedback = core.CleanString(vs.Feedback)
	return validate.Struct(vs)
}

type QueryFilter struct {
	ProfessorID int    `query:"professor_id"`
	Search      string `query:"search"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
