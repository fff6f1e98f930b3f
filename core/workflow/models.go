package workflow

import "time"

const (
	StepName     = "name"
	StepQuestion = "question"
	StepSolution = "solution"
	StepRubrics  = "rubrics"
	StepUpload   = "upload"
	StepComplete = "complete"
)

type (
	ChatMessage struct {
		ID     int    `json:"id"`
		Text   string `json:"text"`
		IsUser bool   `json:"is_user"`
	}

	// Session is a professor's progress through the assignment creation workflow.
	Session struct {
		ProfessorID    int           `json:"professor_id"`
		Step           string        `json:"step"`
		AssignmentName string        `json:"assignment_name"`
		AssignmentID   int           `json:"assignment_id"`
		Solution       string        `json:"solution"`
		Rubric         string        `json:"rubric"`
		JobID          string        `json:"job_id"`
		Messages       []ChatMessage `json:"messages"`
		UpdatedAt      time.Time     `json:"updated_at"`
	}

	// Input advances a Session. Each step reads its own field.
	Input struct {
		AssignmentName string `json:"assignment_name"`
		AssignmentID   int    `json:"assignment_id"`
		Approved       *bool  `json:"approved"`
		Feedback       string `json:"feedback"`
		Rubric         string `json:"rubric"`
		JobID          string `json:"job_id"`
	}
)

func (s *Session) say(text string, isUser bool) {
	s.Messages = append(s.Messages, ChatMessage{ID: len(s.Messages) + 1, Text: text, IsUser: isUser})
}
