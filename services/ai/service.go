package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
)

const parseErrorFeedback = "Grading error: Unable to parse AI response"

const solutionPrompt = `You are an expert programming instructor. Write a simple, direct Python solution for the assignment below.

Focus on the assignment content and ignore generic titles. Implement only what is requested, match any
sample output exactly, use basic Python constructs and keep comments minimal.

ASSIGNMENT CONTENT:
%s

GRADING CRITERIA:
%s

MAXIMUM POINTS: %d

Return only the Python code.`

const gradePrompt = `You are a fair programming grader. Grade this student submission.

Assignment:
%s

Grading Rubric:
%s

Reference Solution:
%s

Student Submission:
%s

Maximum Points: %d

Return ONLY a JSON object with this exact format:
{"score": <number between 0 and %d>, "feedback": "<feedback explaining the grade>"}

Award full points for correct, working code. Deduct points for errors, incomplete features and poor style,
naming what caused each deduction. Keep feedback under 100 words. Code with syntax errors scores low but not
zero unless it is empty.`

// Service generates solutions and grades submissions with a language model,
// falling back to Offline when the model is unavailable.
type Service struct {
	completer  Completer // nil when running offline
	offline    Offline
	maxRetries int
	logger     core.Logger
}

var _ core.AIService = (*Service)(nil) // interface compliance check

// NewService picks the Gemini client, unless the config forces offline mode or holds no API key.
func NewService(conf *core.Config, logger core.Logger) *Service {
	var completer Completer
	if !conf.AI.ForceOffline && conf.AI.GeminiAPIKey != "" {
		completer = NewGeminiClient(conf)
	}
	return NewServiceWithCompleter(completer, conf.AI.MaxRetries, logger)
}

func NewServiceWithCompleter(completer Completer, maxRetries int, logger core.Logger) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Service{completer: completer, maxRetries: maxRetries, logger: logger}
}

func (svc *Service) Offline() bool {
	return svc.completer == nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

// GenerateSolution never fails on model errors: it logs them and returns an offline solution.
func (svc *Service) GenerateSolution(ctx context.Context, req core.SolutionRequest) (string, error) {
	if svc.Offline() {
		return svc.offline.GenerateSolution(ctx, req)
	}

	prompt := fmt.Sprintf(solutionPrompt, req.Question, orDefault(req.Rubric, "Correctness and code quality"), req.MaxPoints)
	reply, err := svc.completer.Complete(ctx, prompt)
	if err == nil {
		if code := stripFences(reply); code != "" {
			return code, nil
		}
		err = errEmptyReply
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}
	svc.logger.Warn(fmt.Sprintf("ai.GenerateSolution: falling back to offline solution: %v", err))
	return svc.offline.GenerateSolution(ctx, req)
}

// GradeSubmission asks the model up to maxRetries times. When the last reply cannot be parsed as JSON
// the submission gets an error result. Any other failure on the last attempt falls back to offline grading.
func (svc *Service) GradeSubmission(ctx context.Context, req core.GradeRequest) (core.GradeResult, error) {
	if svc.Offline() {
		return svc.offline.GradeSubmission(ctx, req)
	}

	prompt := fmt.Sprintf(gradePrompt,
		req.Question, orDefault(req.Rubric, "Correctness and code quality"), req.Solution, req.Code, req.MaxPoints, req.MaxPoints)

	var lastErr error
	for attempt := 1; attempt <= svc.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return core.GradeResult{}, err
		}

		reply, err := svc.completer.Complete(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		score, feedback, err := parseGrade(reply)
		if err != nil {
			lastErr = err
			continue
		}
		return core.GradeResult{
			Score:    clampScore(score, req.MaxPoints),
			Feedback: feedback,
			Status:   core.GradeStatusGraded,
		}, nil
	}

	if errors.Cause(lastErr) == errUnparsable {
		return core.GradeResult{Score: 0, Feedback: parseErrorFeedback, Status: core.GradeStatusError}, nil
	}
	if err := ctx.Err(); err != nil {
		return core.GradeResult{}, err
	}
	svc.logger.Warn(fmt.Sprintf("ai.GradeSubmission(%s): falling back to offline grading: %v", req.StudentName, lastErr))
	return svc.offline.GradeSubmission(ctx, req)
}
