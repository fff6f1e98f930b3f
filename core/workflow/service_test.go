package workflow_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
	"github.com/trezcool/grader/core/professor"
	"github.com/trezcool/grader/core/workflow"
	"github.com/trezcool/grader/services/filestore"
	inmemdb "github.com/trezcool/grader/storage/database/inmem"
	"github.com/trezcool/grader/tests"
)

// jobStore maps known grading job ids to their assignment.
type jobStore map[string]int

func (js jobStore) JobStatus(assignmentID int, jobID string) (grading.Job, error) {
	if id, ok := js[jobID]; ok && id == assignmentID {
		return grading.Job{ID: jobID, AssignmentID: id, Status: grading.JobRunning}, nil
	}
	return grading.Job{}, grading.ErrJobNotFound
}

func setup(t *testing.T) (*workflow.Service, *assignment.Service, professor.Repository, assignment.Repository, jobStore) {
	db := inmemdb.Open()
	profRepo := inmemdb.NewProfessorRepository(db)
	asnRepo := inmemdb.NewAssignmentRepository(db)
	dir := t.TempDir()
	store, err := filestore.NewLocalStore(dir)
	require.NoError(t, err)

	asnSvc := assignment.NewService(
		asnRepo,
		professor.NewService(profRepo),
		store,
		filestore.ZipExtractor{},
		dir,
		testutil.NewLogger(core.NewTestConfig(dir)),
	)
	jobs := make(jobStore)
	return workflow.NewService(inmemdb.NewWorkflowStore(), asnSvc, jobs), asnSvc, profRepo, asnRepo, jobs
}

func invalidField(t *testing.T, err error) string {
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), "expected a validation error, got %v", err)
	require.Len(t, vErr.Fields, 1)
	return vErr.Fields[0].Field
}

func boolPtr(b bool) *bool { return &b }

func TestService_Advance(t *testing.T) {
	ctx := context.Background()
	svc, asnSvc, profRepo, asnRepo, jobs := setup(t)
	prof := testutil.CreateProfessor(t, profRepo, "Ada", "ada@uni.edu", "CS", "")
	other := testutil.CreateProfessor(t, profRepo, "Alan", "alan@uni.edu", "CS", "")

	asn := testutil.CreateAssignment(t, asnRepo, prof.ID, "HW 1", "Sum two numbers", 100)
	asn, err := asnSvc.SetSolution(ctx, asn, "print(a + b)")
	require.NoError(t, err)
	foreign := testutil.CreateAssignment(t, asnRepo, other.ID, "HW 9", "", 100)
	jobs["job-1"] = asn.ID
	jobs["job-9"] = foreign.ID

	s, err := svc.Get(ctx, prof.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepName, s.Step)
	require.Len(t, s.Messages, 1)
	assert.False(t, s.Messages[0].IsUser)

	steps := []struct {
		name      string
		in        workflow.Input
		wantField string
		wantStep  string
	}{
		{name: "blank name", in: workflow.Input{AssignmentName: "  "}, wantField: "assignment_name", wantStep: workflow.StepName},
		{name: "name", in: workflow.Input{AssignmentName: " HW 1 "}, wantStep: workflow.StepQuestion},
		{name: "missing assignment", in: workflow.Input{}, wantField: "assignment_id", wantStep: workflow.StepQuestion},
		{name: "unknown assignment", in: workflow.Input{AssignmentID: 999}, wantField: "assignment_id", wantStep: workflow.StepQuestion},
		{name: "assignment of another professor", in: workflow.Input{AssignmentID: foreign.ID}, wantField: "assignment_id", wantStep: workflow.StepQuestion},
		{name: "question", in: workflow.Input{AssignmentID: asn.ID}, wantStep: workflow.StepSolution},
		{name: "no decision", in: workflow.Input{}, wantField: "approved", wantStep: workflow.StepSolution},
		{name: "approve", in: workflow.Input{Approved: boolPtr(true)}, wantStep: workflow.StepRubrics},
		{name: "blank rubric", in: workflow.Input{Rubric: "\n"}, wantField: "rubric", wantStep: workflow.StepRubrics},
		{name: "rubric", in: workflow.Input{Rubric: "Correctness: 100"}, wantStep: workflow.StepUpload},
		{name: "missing job", in: workflow.Input{}, wantField: "job_id", wantStep: workflow.StepUpload},
		{name: "unknown job", in: workflow.Input{JobID: "job-2"}, wantField: "job_id", wantStep: workflow.StepUpload},
		{name: "job of another assignment", in: workflow.Input{JobID: "job-9"}, wantField: "job_id", wantStep: workflow.StepUpload},
		{name: "job", in: workflow.Input{JobID: "job-1"}, wantStep: workflow.StepComplete},
		{name: "restart", in: workflow.Input{}, wantStep: workflow.StepName},
	}
	for _, step := range steps {
		before, err := svc.Get(ctx, prof.ID)
		require.NoError(t, err)

		s, err := svc.Advance(ctx, prof.ID, step.in)
		if step.wantField != "" {
			assert.Equal(t, step.wantField, invalidField(t, err), step.name)
			after, err := svc.Get(ctx, prof.ID)
			require.NoError(t, err)
			after.UpdatedAt = before.UpdatedAt
			assert.Equal(t, before, after, step.name)
			continue
		}
		require.NoError(t, err, step.name)
		assert.Equal(t, step.wantStep, s.Step, step.name)

		switch step.wantStep {
		case workflow.StepQuestion:
			assert.Equal(t, "HW 1", s.AssignmentName)
			assert.Len(t, s.Messages, 3)
		case workflow.StepSolution:
			assert.Equal(t, asn.ID, s.AssignmentID)
			assert.Equal(t, "print(a + b)", s.Solution)
		case workflow.StepRubrics:
			stored, err := asnSvc.GetByID(ctx, asn.ID)
			require.NoError(t, err)
			assert.Equal(t, assignment.SolutionApproved, stored.SolutionStatus)
		case workflow.StepUpload:
			assert.Equal(t, "Correctness: 100", s.Rubric)
			stored, err := asnSvc.GetByID(ctx, asn.ID)
			require.NoError(t, err)
			assert.Equal(t, "Correctness: 100", stored.Rubric)
		case workflow.StepComplete:
			assert.Equal(t, "job-1", s.JobID)
			assert.Len(t, s.Messages, 11)
		case workflow.StepName:
			assert.Empty(t, s.AssignmentName)
			assert.Zero(t, s.AssignmentID)
			require.Len(t, s.Messages, 2)
			assert.True(t, s.Messages[0].IsUser)
			assert.False(t, s.Messages[1].IsUser)
		}
	}

	// sessions are kept per professor
	s, err = svc.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepName, s.Step)
}

func TestService_RejectSolution(t *testing.T) {
	ctx := context.Background()
	svc, asnSvc, profRepo, asnRepo, _ := setup(t)
	prof := testutil.CreateProfessor(t, profRepo, "Ada", "ada@uni.edu", "CS", "")
	asn := testutil.CreateAssignment(t, asnRepo, prof.ID, "HW 1", "", 100)
	asn, err := asnSvc.SetSolution(ctx, asn, "print('wrong')")
	require.NoError(t, err)

	_, err = svc.Advance(ctx, prof.ID, workflow.Input{AssignmentName: "HW 1"})
	require.NoError(t, err)
	_, err = svc.Advance(ctx, prof.ID, workflow.Input{AssignmentID: asn.ID})
	require.NoError(t, err)

	s, err := svc.Advance(ctx, prof.ID, workflow.Input{Approved: boolPtr(false)})
	require.NoError(t, err)
	assert.Equal(t, workflow.StepSolution, s.Step)
	assert.Empty(t, s.Solution)

	stored, err := asnSvc.GetByID(ctx, asn.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.IdealSolution)
	assert.Equal(t, assignment.SolutionRejected, stored.SolutionStatus)

	// nothing left to approve until a new solution is generated
	_, err = svc.Advance(ctx, prof.ID, workflow.Input{Approved: boolPtr(true)})
	assert.Equal(t, "approved", invalidField(t, err))

	_, err = asnSvc.SetSolution(ctx, stored, "print('right')")
	require.NoError(t, err)
	s, err = svc.Advance(ctx, prof.ID, workflow.Input{Approved: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, workflow.StepRubrics, s.Step)
	assert.Equal(t, "print('right')", s.Solution)
	stored, err = asnSvc.GetByID(ctx, asn.ID)
	require.NoError(t, err)
	assert.Equal(t, assignment.SolutionApproved, stored.SolutionStatus)

	s, err = svc.Reset(ctx, prof.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepName, s.Step)

	s, err = svc.Get(ctx, prof.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StepName, s.Step)
	assert.Zero(t, s.AssignmentID)
}
