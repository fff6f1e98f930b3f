package assignment_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/professor"
	"github.com/trezcool/grader/services/filestore"
	inmemdb "github.com/trezcool/grader/storage/database/inmem"
	"github.com/trezcool/grader/tests"
)

type fixture struct {
	svc        *assignment.Service
	profs      professor.Repository
	validate   *validator.Validate
	uploadsDir string
	extractDir string
}

func setup(t *testing.T) fixture {
	db := inmemdb.Open()
	profRepo := inmemdb.NewProfessorRepository(db)
	uploadsDir := t.TempDir()
	extractDir := filepath.Join(uploadsDir, "extracted")

	store, err := filestore.NewLocalStore(uploadsDir)
	require.NoError(t, err)
	conf := core.NewTestConfig(uploadsDir)

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())

	svc := assignment.NewService(
		inmemdb.NewAssignmentRepository(db),
		professor.NewService(profRepo),
		store,
		filestore.ZipExtractor{MaxSize: conf.Uploads.MaxExtractedSize},
		extractDir,
		testutil.NewLogger(conf),
	)
	return fixture{svc: svc, profs: profRepo, validate: validate, uploadsDir: uploadsDir, extractDir: extractDir}
}

func TestNewService(t *testing.T) {
	conf := core.NewTestConfig(t.TempDir())
	store, err := filestore.NewLocalStore(conf.Uploads.Dir)
	require.NoError(t, err)
	db := inmemdb.Open()

	// wired the way the binaries do it
	assert.NotPanics(t, func() {
		assignment.NewService(
			inmemdb.NewAssignmentRepository(db),
			professor.NewService(inmemdb.NewProfessorRepository(db)),
			store,
			filestore.ZipExtractor{MaxSize: conf.Uploads.MaxExtractedSize},
			filepath.Join(conf.Uploads.Dir, "extracted"),
			testutil.NewLogger(conf),
		)
	})
	assert.Panics(t, func() {
		assignment.NewService(nil, nil, store, filestore.ZipExtractor{}, "", testutil.NewLogger(conf))
	})
}

func fieldsOf(t *testing.T, err error) []string {
	var vErr *core.ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected a validation error, got %T: %v", err, err)
	}
	fields := make([]string, 0, len(vErr.Fields))
	for _, f := range vErr.Fields {
		fields = append(fields, f.Field)
	}
	return fields
}

func TestParseDueDate(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantNil bool
		wantErr bool
	}{
		{in: "", wantNil: true},
		{in: "2025-10-03", want: time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)},
		{in: "2025-10-03T23:59:00", want: time.Date(2025, 10, 3, 23, 59, 0, 0, time.UTC)},
		{in: "2025-10-03T23:59:00+02:00", want: time.Date(2025, 10, 3, 21, 59, 0, 0, time.UTC)},
		{in: "03/10/2025", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := assignment.ParseDueDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.wantNil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %v", *got)
		})
	}
}

func TestNewAssignment_Validate(t *testing.T) {
	f := setup(t)

	na := assignment.NewAssignment{Title: " HW 3 ", ProfessorID: 1}
	require.NoError(t, na.Validate(f.validate))
	assert.Equal(t, "HW 3", na.Title)
	assert.Equal(t, assignment.DefaultMaxPoints, na.MaxPoints)

	na = assignment.NewAssignment{Title: "HW", ProfessorID: 1, DueDate: "tomorrow"}
	assert.Equal(t, []string{"due_date"}, fieldsOf(t, na.Validate(f.validate)))

	na = assignment.NewAssignment{Title: "", ProfessorID: 1}
	err := na.Validate(f.validate)
	require.Error(t, err)
	assert.IsType(t, validator.ValidationErrors{}, err)
}

func TestService_CreateWithQuestionFile(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prof := testutil.CreateProfessor(t, f.profs, "Ada", "ada@uni.edu", "CS", "")

	na := assignment.NewAssignment{Title: "Factorial", ProfessorID: prof.ID}
	require.NoError(t, na.Validate(f.validate))
	asn, err := f.svc.CreateWithQuestionFile(ctx, na, "question.txt", strings.NewReader("  Compute n! recursively.\n"))
	require.NoError(t, err)
	assert.Equal(t, "Compute n! recursively.", asn.QuestionText)
	assert.Equal(t, assignment.SolutionNone, asn.SolutionStatus)
	_, err = os.Stat(asn.QuestionFilePath)
	assert.NoError(t, err)

	// binary question files are stored without text
	asn, err = f.svc.CreateWithQuestionFile(ctx, na, "question.pdf", bytes.NewReader([]byte{0x25, 0x50, 0x44, 0x46, 0xff}))
	require.NoError(t, err)
	assert.Empty(t, asn.QuestionText)
	assert.NotEmpty(t, asn.QuestionFilePath)

	// unknown professor
	na.ProfessorID = 999
	_, err = f.svc.CreateWithQuestionFile(ctx, na, "question.txt", strings.NewReader("x"))
	assert.Equal(t, []string{"professor_id"}, fieldsOf(t, err))
}

func TestService_SetSubmissions(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prof := testutil.CreateProfessor(t, f.profs, "Ada", "ada@uni.edu", "CS", "")
	na := assignment.NewAssignment{Title: "HW", ProfessorID: prof.ID}
	require.NoError(t, na.Validate(f.validate))
	asn, err := f.svc.Create(ctx, na)
	require.NoError(t, err)

	_, err = f.svc.SetSubmissions(ctx, asn, "subs.rar", strings.NewReader("data"))
	assert.Equal(t, assignment.ErrNotZip, errors.Cause(err).(*core.ValidationError).Err)

	_, err = f.svc.SetSubmissions(ctx, asn, "subs.zip", strings.NewReader(""))
	assert.Equal(t, assignment.ErrEmptyUpload, errors.Cause(err).(*core.ValidationError).Err)

	_, err = f.svc.SetSubmissions(ctx, asn, "subs.zip", strings.NewReader("not a zip"))
	assert.Equal(t, assignment.ErrBadArchive, errors.Cause(err).(*core.ValidationError).Err)

	data := testutil.MakeZip(t, map[string]string{"alice.py": "print('a')", "bob.py": "print('b')"})
	asn, err = f.svc.SetSubmissions(ctx, asn, "subs.zip", bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.extractDir, "1"), asn.ExtractedFolderPath)
	_, err = os.Stat(filepath.Join(asn.ExtractedFolderPath, "alice.py"))
	assert.NoError(t, err)
	_, err = os.Stat(asn.ZipFilePath)
	assert.NoError(t, err)

	// a new upload replaces the previous submissions
	data = testutil.MakeZip(t, map[string]string{"carol.py": "print('c')"})
	asn, err = f.svc.SetSubmissions(ctx, asn, "subs2.zip", bytes.NewReader(data))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(asn.ExtractedFolderPath, "alice.py"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(asn.ExtractedFolderPath, "carol.py"))
	assert.NoError(t, err)

	// a corrupt upload keeps the previous submissions and archive
	_, err = f.svc.SetSubmissions(ctx, asn, "broken.zip", strings.NewReader("PK\x03\x04 truncated"))
	assert.Equal(t, assignment.ErrBadArchive, errors.Cause(err).(*core.ValidationError).Err)
	stored, err := f.svc.GetByID(ctx, asn.ID)
	require.NoError(t, err)
	assert.Equal(t, asn.ExtractedFolderPath, stored.ExtractedFolderPath)
	assert.Equal(t, asn.ZipFilePath, stored.ZipFilePath)
	_, err = os.Stat(filepath.Join(stored.ExtractedFolderPath, "carol.py"))
	assert.NoError(t, err)
	_, err = os.Stat(stored.ZipFilePath)
	assert.NoError(t, err)

	// temp uploads and staging dirs are cleaned up
	matches, _ := filepath.Glob(filepath.Join(f.extractDir, "upload-*.zip"))
	assert.Empty(t, matches)
	matches, _ = filepath.Glob(filepath.Join(f.extractDir, "staging-*"))
	assert.Empty(t, matches)
}

func TestService_Solution(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prof := testutil.CreateProfessor(t, f.profs, "Ada", "ada@uni.edu", "CS", "")
	na := assignment.NewAssignment{Title: "HW", ProfessorID: prof.ID}
	require.NoError(t, na.Validate(f.validate))
	asn, err := f.svc.Create(ctx, na)
	require.NoError(t, err)
	assert.False(t, asn.HasSolution())

	approved := true
	_, err = f.svc.VerifySolution(ctx, asn, assignment.VerifySolution{Approved: &approved})
	assert.Equal(t, []string{"approved"}, fieldsOf(t, err))

	asn, err = f.svc.SetSolution(ctx, asn, "print('solution')")
	require.NoError(t, err)
	assert.Equal(t, assignment.SolutionGenerated, asn.SolutionStatus)
	assert.True(t, asn.HasSolution())

	asn, err = f.svc.VerifySolution(ctx, asn, assignment.VerifySolution{Approved: &approved, Feedback: "looks right"})
	require.NoError(t, err)
	assert.Equal(t, assignment.SolutionApproved, asn.SolutionStatus)
	assert.Equal(t, "looks right", asn.SolutionFeedback)

	rejected := false
	asn, err = f.svc.VerifySolution(ctx, asn, assignment.VerifySolution{Approved: &rejected})
	require.NoError(t, err)
	assert.Equal(t, assignment.SolutionRejected, asn.SolutionStatus)
	assert.False(t, asn.HasSolution())

	asn, err = f.svc.ClearSolution(ctx, asn, "wrong algorithm")
	require.NoError(t, err)
	assert.Empty(t, asn.IdealSolution)
	assert.Equal(t, "wrong algorithm", asn.SolutionFeedback)
}

func TestService_Delete(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	prof := testutil.CreateProfessor(t, f.profs, "Ada", "ada@uni.edu", "CS", "")
	na := assignment.NewAssignment{Title: "HW", ProfessorID: prof.ID}
	require.NoError(t, na.Validate(f.validate))

	asn, err := f.svc.CreateWithQuestionFile(ctx, na, "q.txt", strings.NewReader("question"))
	require.NoError(t, err)
	asn, err = f.svc.SetSubmissions(ctx, asn, "subs.zip", bytes.NewReader(testutil.MakeZip(t, map[string]string{"a.py": "x"})))
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, na)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteByProfessor(ctx, prof.ID))

	for _, id := range []int{asn.ID, other.ID} {
		_, err = f.svc.GetByID(ctx, id)
		assert.True(t, core.IsNotFound(err))
	}
	_, err = os.Stat(asn.QuestionFilePath)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(asn.ExtractedFolderPath)
	assert.True(t, os.IsNotExist(err))
}
