package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
)

const greeting = "Let's create a new assignment. What is it called?"

var (
	errNameRequired     = errors.New("assignment name is required")
	errAssignmentNeeded = errors.New("assignment not found")
	errApprovalNeeded   = errors.New("approve or reject the solution")
	errRubricRequired   = errors.New("rubric is required")
	errJobRequired      = errors.New("grading job id is required")
	errJobNotFound      = errors.New("grading job not found for this assignment")
	errNoSolution       = errors.New("no solution to review, generate one first")
)

type (
	// Store persists one Session per professor.
	Store interface {
		// GetSession reports false when the professor has no session yet.
		GetSession(ctx context.Context, professorID int) (Session, bool, error)
		SaveSession(ctx context.Context, session Session) error
		DeleteSession(ctx context.Context, professorID int) error
	}

	AssignmentService interface {
		GetByID(ctx context.Context, id int) (assignment.Assignment, error)
		SetRubric(ctx context.Context, asn assignment.Assignment, rubric string) (assignment.Assignment, error)
		VerifySolution(ctx context.Context, asn assignment.Assignment, vs assignment.VerifySolution) (assignment.Assignment, error)
		ClearSolution(ctx context.Context, asn assignment.Assignment, feedback string) (assignment.Assignment, error)
	}

	JobGetter interface {
		JobStatus(assignmentID int, jobID string) (grading.Job, error)
	}

	Service struct {
		store Store
		asns  AssignmentService
		jobs  JobGetter
		mu    sync.Mutex
	}
)

func NewService(store Store, asns AssignmentService, jobs JobGetter) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(store, "store"),
		vala.IsNotNil(asns, "asns"),
		vala.IsNotNil(jobs, "jobs"),
	).CheckAndPanic()
	return &Service{store: store, asns: asns, jobs: jobs}
}

func newSession(professorID int) Session {
	s := Session{ProfessorID: professorID, Step: StepName, UpdatedAt: time.Now().UTC()}
	s.say(greeting, false)
	return s
}

func fieldError(field string, err error) error {
	return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
}

func (svc *Service) get(ctx context.Context, professorID int) (Session, error) {
	s, ok, err := svc.store.GetSession(ctx, professorID)
	if err != nil {
		return Session{}, errors.Wrap(err, "getting session")
	}
	if !ok {
		return newSession(professorID), nil
	}
	return s, nil
}

// Get returns the professor's session, or a fresh one at the `name` step.
func (svc *Service) Get(ctx context.Context, professorID int) (Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.get(ctx, professorID)
}

// Reset discards the professor's session.
func (svc *Service) Reset(ctx context.Context, professorID int) (Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	if err := svc.store.DeleteSession(ctx, professorID); err != nil {
		return Session{}, errors.Wrap(err, "deleting session")
	}
	return newSession(professorID), nil
}

// Advance applies in to the current step. Invalid input leaves the session untouched.
func (svc *Service) Advance(ctx context.Context, professorID int, in Input) (Session, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	s, err := svc.get(ctx, professorID)
	if err != nil {
		return Session{}, err
	}

	switch s.Step {
	case StepName:
		err = svc.setName(&s, in)
	case StepQuestion:
		err = svc.setQuestion(ctx, &s, in)
	case StepSolution:
		err = svc.reviewSolution(ctx, &s, in)
	case StepRubrics:
		err = svc.setRubric(ctx, &s, in)
	case StepUpload:
		err = svc.setJob(&s, in)
	default: // complete, or unknown
		s = Session{ProfessorID: professorID, Step: StepName}
		s.say("Start over.", true)
		s.say(greeting, false)
	}
	if err != nil {
		return Session{}, err
	}

	s.UpdatedAt = time.Now().UTC()
	if err = svc.store.SaveSession(ctx, s); err != nil {
		return Session{}, errors.Wrap(err, "saving session")
	}
	return s, nil
}

func (svc *Service) setName(s *Session, in Input) error {
	name := core.CleanString(in.AssignmentName)
	if name == "" {
		return fieldError("assignment_name", errNameRequired)
	}
	s.AssignmentName = name
	s.say(name, true)
	s.say(fmt.Sprintf("Great, %q it is. Upload the question file and send me the assignment id.", name), false)
	s.Step = StepQuestion
	return nil
}

func (svc *Service) setQuestion(ctx context.Context, s *Session, in Input) error {
	if in.AssignmentID <= 0 {
		return fieldError("assignment_id", errAssignmentNeeded)
	}
	asn, err := svc.asns.GetByID(ctx, in.AssignmentID)
	if err != nil {
		if core.IsNotFound(err) {
			return fieldError("assignment_id", errAssignmentNeeded)
		}
		return errors.Wrap(err, "getting assignment")
	}
	if asn.ProfessorID != s.ProfessorID {
		return fieldError("assignment_id", errAssignmentNeeded)
	}

	s.AssignmentID = asn.ID
	s.Solution = asn.IdealSolution
	s.say(fmt.Sprintf("Question uploaded for assignment #%d.", asn.ID), true)
	s.say("Here is the reference solution. Do you approve it?", false)
	s.Step = StepSolution
	return nil
}

func (svc *Service) reviewSolution(ctx context.Context, s *Session, in Input) error {
	if in.Approved == nil {
		return fieldError("approved", errApprovalNeeded)
	}

	// the solution may have been (re)generated since the last input
	asn, err := svc.asns.GetByID(ctx, s.AssignmentID)
	if err != nil {
		return errors.Wrap(err, "getting assignment")
	}
	s.Solution = asn.IdealSolution
	if !asn.HasSolution() {
		return fieldError("approved", errNoSolution)
	}

	feedback := core.CleanString(in.Feedback)
	if asn, err = svc.asns.VerifySolution(ctx, asn, assignment.VerifySolution{Approved: in.Approved, Feedback: feedback}); err != nil {
		return errors.Wrap(err, "verifying solution")
	}
	if *in.Approved {
		s.say("Approved.", true)
		s.say("Now send me the grading rubric.", false)
		s.Step = StepRubrics
		return nil
	}

	if feedback == "" {
		feedback = "rejected during assignment setup"
	}
	if _, err = svc.asns.ClearSolution(ctx, asn, feedback); err != nil {
		return errors.Wrap(err, "clearing solution")
	}
	s.Solution = ""
	s.say("Rejected.", true)
	s.say("Solution discarded. Generate a new one and review it again.", false)
	return nil
}

func (svc *Service) setRubric(ctx context.Context, s *Session, in Input) error {
	rubric := core.CleanString(in.Rubric)
	if rubric == "" {
		return fieldError("rubric", errRubricRequired)
	}
	asn, err := svc.asns.GetByID(ctx, s.AssignmentID)
	if err != nil {
		return errors.Wrap(err, "getting assignment")
	}
	if _, err = svc.asns.SetRubric(ctx, asn, rubric); err != nil {
		return errors.Wrap(err, "saving rubric")
	}

	s.Rubric = rubric
	s.say(rubric, true)
	s.say("Rubric saved. Upload the student submissions as a ZIP file.", false)
	s.Step = StepUpload
	return nil
}

func (svc *Service) setJob(s *Session, in Input) error {
	jobID := strings.TrimSpace(in.JobID)
	if jobID == "" {
		return fieldError("job_id", errJobRequired)
	}
	if _, err := svc.jobs.JobStatus(s.AssignmentID, jobID); err != nil {
		if core.IsNotFound(err) {
			return fieldError("job_id", errJobNotFound)
		}
		return errors.Wrap(err, "getting grading job")
	}
	s.JobID = jobID
	s.say("Submissions uploaded.", true)
	s.say("Grading started. I'll let you know when the grades are ready.", false)
	s.Step = StepComplete
	return nil
}
