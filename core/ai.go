package core

import "context"

const (
	GradeStatusPending = "pending"
	GradeStatusGraded  = "graded"
	GradeStatusError   = "error"
)

type (
	// SolutionRequest describes the assignment a reference solution is generated for.
	SolutionRequest struct {
		Question  string
		Rubric    string
		MaxPoints int
	}

	// GradeRequest carries one student submission and what it is graded against.
	GradeRequest struct {
		StudentName string
		Code        string
		Question    string
		Rubric      string
		Solution    string
		MaxPoints   int
	}

	// GradeResult is the outcome of grading one submission. Score is within [0, MaxPoints].
	GradeResult struct {
		Score    float64
		Feedback string
		Status   string // graded | error
	}

	// AIService generates reference solutions and grades submissions.
	AIService interface {
		GenerateSolution(ctx context.Context, req SolutionRequest) (string, error)
		GradeSubmission(ctx context.Context, req GradeRequest) (GradeResult, error)
	}
)
