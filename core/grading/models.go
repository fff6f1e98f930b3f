package grading

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/grader/core"
)

const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

type (
	SubmissionResult struct {
		ID             int        `json:"id"`
		AssignmentID   int        `json:"assignment_id"`
		StudentName    string     `json:"student_name"`
		StudentID      string     `json:"student_id"`
		SubmissionPath string     `json:"submission_path"`
		Score          float64    `json:"score"`
		MaxScore       float64    `json:"max_score"`
		Feedback       string     `json:"feedback"`
		GradingStatus  string     `json:"grading_status"`
		CreatedAt      time.Time  `json:"created_at"`
		GradedAt       *time.Time `json:"graded_at"`
	}

	Report struct {
		ID                int       `json:"id"`
		AssignmentID      int       `json:"assignment_id"`
		ReportName        string    `json:"report_name"`
		TotalSubmissions  int       `json:"total_submissions"`
		GradedSubmissions int       `json:"graded_submissions"`
		AverageScore      float64   `json:"average_score"`
		CreatedAt         time.Time `json:"created_at"`
	}

	// Grade is the per-student view of a SubmissionResult.
	Grade struct {
		SubmissionID  int     `json:"submission_id"`
		StudentName   string  `json:"student_name"`
		StudentID     string  `json:"student_id"`
		Score         float64 `json:"score"`
		MaxScore      float64 `json:"max_score"`
		Percentage    float64 `json:"percentage"`
		Feedback      string  `json:"feedback"`
		GradingStatus string  `json:"grading_status"`
	}

	// Summary describes one grading run.
	Summary struct {
		ReportID          int                `json:"report_id"`
		AssignmentID      int                `json:"assignment_id"`
		GeneratedSolution string             `json:"generated_solution"`
		Results           []SubmissionResult `json:"results"`
		AverageScore      float64            `json:"average_score"`
		TotalSubmissions  int                `json:"total_submissions"`
		SuccessfulGrades  int                `json:"successful_grades"`
	}

	Job struct {
		ID           string     `json:"job_id"`
		AssignmentID int        `json:"assignment_id"`
		Status       string     `json:"status"`
		Total        int        `json:"total"`
		Graded       int        `json:"graded"`
		Error        string     `json:"error,omitempty"`
		CreatedAt    time.Time  `json:"created_at"`
		StartedAt    *time.Time `json:"started_at"`
		FinishedAt   *time.Time `json:"finished_at"`
		Result       *Summary   `json:"result,omitempty"`
	}

	Average struct {
		AssignmentID      int     `json:"assignment_id"`
		AverageScore      float64 `json:"average_score"`
		AveragePercentage float64 `json:"average_percentage"`
		GradedSubmissions int     `json:"graded_submissions"`
	}

	ClassAverage struct {
		ClassAverage      float64 `json:"class_average"`
		GradedAssignments int     `json:"graded_assignments"`
		TotalSubmissions  int     `json:"total_submissions"`
	}

	// GradeOptions override the assignment's rubric and max points for one run.
	GradeOptions struct {
		Rubric    *string `json:"rubric" form:"rubric"`
		MaxPoints *int    `json:"max_points" form:"max_points" validate:"omitempty,gt=0"`
	}
)

func (opts *GradeOptions) Validate(validate *validator.Validate) error {
	if opts.Rubric != nil {
		rubric := core.CleanString(*opts.Rubric)
		opts.Rubric = &rubric
	}
	return validate.Struct(opts)
}

// Done reports whether the job reached a final status.
func (j Job) Done() bool {
	return j.Status == JobCompleted || j.Status == JobFailed
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}

// Percentage returns score / max_score * 100, rounded to 1 decimal. Zero when max_score is zero.
func (r SubmissionResult) Percentage() float64 {
	if r.MaxScore == 0 {
		return 0
	}
	return round1(r.Score / r.MaxScore * 100)
}

func (r SubmissionResult) Grade() Grade {
	return Grade{
		SubmissionID:  r.ID,
		StudentName:   r.StudentName,
		StudentID:     r.StudentID,
		Score:         r.Score,
		MaxScore:      r.MaxScore,
		Percentage:    r.Percentage(),
		Feedback:      r.Feedback,
		GradingStatus: r.GradingStatus,
	}
}
