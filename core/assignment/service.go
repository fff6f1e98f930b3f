package assignment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/professor"
)

var (
	// errors
	ErrNotFound      = core.NewNotFoundError("assignment not found")
	ErrNotZip        = errors.New("only ZIP files are allowed")
	ErrEmptyUpload   = errors.New("no file selected")
	ErrBadArchive    = errors.New("invalid or corrupted ZIP file")
	ErrNoSolution    = errors.New("no solution to verify, generate one first")
	errProfNotFound  = errors.New("professor not found")
	textQuestionExts = map[string]bool{".txt": true, ".md": true, ".py": true, ".text": true}
)

const maxQuestionTextSize = 1 << 20

// cappedBuffer keeps at most max bytes and flags anything beyond.
type cappedBuffer struct {
	bytes.Buffer
	max      int
	overflow bool
}

func (cb *cappedBuffer) Write(p []byte) (int, error) {
	if cb.overflow || cb.Len()+len(p) > cb.max {
		cb.overflow = true
		cb.Reset()
		return len(p), nil
	}
	return cb.Buffer.Write(p)
}

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		// QueryAssignments does a case-insensitive match of QueryFilter.Search on Assignment.Title or Description.
		QueryAssignments(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Assignment, error)
		GetAssignment(ctx context.Context, id int) (Assignment, error)
		UpdateAssignment(ctx context.Context, a Assignment) (Assignment, error)
		DeleteAssignment(ctx context.Context, id int) error
	}

	ProfessorGetter interface {
		GetByID(ctx context.Context, id int) (professor.Professor, error)
	}

	Service struct {
		repo       Repository
		profs      ProfessorGetter
		store      core.FileStore
		extractor  core.Extractor
		extractDir string
		logger     core.Logger
	}
)

// NewService returns an assignment service. Submission archives are extracted under extractDir.
func NewService(
	repo Repository,
	profs ProfessorGetter,
	store core.FileStore,
	extractor core.Extractor,
	extractDir string,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(profs, "profs"),
		vala.IsNotNil(store, "store"),
		vala.StringNotEmpty(extractDir, "extractDir"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	return &Service{
		repo:       repo,
		profs:      profs,
		store:      store,
		extractor:  extractor,
		extractDir: extractDir,
		logger:     logger,
	}
}

func assignmentPrefix(id int) string {
	return path.Join("assignments", strconv.Itoa(id)) + "/"
}

func (svc *Service) checkProfessor(ctx context.Context, id int) error {
	if _, err := svc.profs.GetByID(ctx, id); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(errProfNotFound, core.FieldError{Field: "professor_id", Error: errProfNotFound.Error()})
		}
		return errors.Wrap(err, "getting professor")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, na NewAssignment) (Assignment, error) {
	if err := svc.checkProfessor(ctx, na.ProfessorID); err != nil {
		return Assignment{}, err
	}
	asn := Assignment{
		Title:          na.Title,
		Description:    na.Description,
		DueDate:        na.dueDate,
		MaxPoints:      na.MaxPoints,
		ProfessorID:    na.ProfessorID,
		Rubric:         na.Rubric,
		SolutionStatus: SolutionNone,
		CreatedAt:      time.Now().UTC(),
	}
	return svc.repo.CreateAssignment(ctx, asn)
}

// CreateWithQuestionFile creates an assignment and stores its question file.
// The question text is extracted from plain-text files.
func (svc *Service) CreateWithQuestionFile(ctx context.Context, na NewAssignment, filename string, r io.Reader) (Assignment, error) {
	filename = filepath.Base(core.CleanString(filename))
	if filename == "" || filename == "." {
		return Assignment{}, core.NewValidationError(ErrEmptyUpload, core.FieldError{Field: "file", Error: ErrEmptyUpload.Error()})
	}

	asn, err := svc.Create(ctx, na)
	if err != nil {
		return Assignment{}, err
	}

	buf := &cappedBuffer{max: maxQuestionTextSize}
	loc, err := svc.store.Save(ctx, assignmentPrefix(asn.ID)+"question/"+filename, io.TeeReader(r, buf))
	if err != nil {
		_ = svc.repo.DeleteAssignment(ctx, asn.ID)
		return Assignment{}, errors.Wrap(err, "saving question file")
	}
	asn.QuestionFilePath = loc

	if textQuestionExts[strings.ToLower(filepath.Ext(filename))] && !buf.overflow && utf8.Valid(buf.Bytes()) {
		asn.QuestionText = strings.TrimSpace(buf.String())
	}
	return svc.repo.UpdateAssignment(ctx, asn)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Assignment, error) {
	return svc.repo.QueryAssignments(ctx, filter, core.FilterOrderings(ordering, OrderingFields...))
}

func (svc *Service) GetByID(ctx context.Context, id int) (Assignment, error) {
	return svc.repo.GetAssignment(ctx, id)
}

func (svc *Service) Update(ctx context.Context, asn Assignment, ua UpdateAssignment) (Assignment, error) {
	if ua.Title != nil {
		asn.Title = *ua.Title
	}
	if ua.Description != nil {
		asn.Description = core.CleanString(*ua.Description)
	}
	if ua.DueDate != nil {
		asn.DueDate = ua.dueDate
	}
	if ua.MaxPoints != nil {
		asn.MaxPoints = *ua.MaxPoints
	}
	if ua.Rubric != nil {
		asn.Rubric = core.CleanString(*ua.Rubric)
	}
	return svc.repo.UpdateAssignment(ctx, asn)
}

// SetRubric stores the grading rubric of an assignment.
func (svc *Service) SetRubric(ctx context.Context, asn Assignment, rubric string) (Assignment, error) {
	asn.Rubric = core.CleanString(rubric)
	return svc.repo.UpdateAssignment(ctx, asn)
}

// SetSubmissions stores the submissions archive of an assignment and extracts it,
// replacing any previously uploaded submissions.
func (svc *Service) SetSubmissions(ctx context.Context, asn Assignment, filename string, r io.Reader) (Assignment, error) {
	filename = filepath.Base(core.CleanString(filename))
	if filename == "" || filename == "." {
		return Assignment{}, core.NewValidationError(ErrEmptyUpload, core.FieldError{Field: "file", Error: ErrEmptyUpload.Error()})
	}
	if strings.ToLower(filepath.Ext(filename)) != ".zip" {
		return Assignment{}, core.NewValidationError(ErrNotZip, core.FieldError{Field: "file", Error: ErrNotZip.Error()})
	}

	if err := os.MkdirAll(svc.extractDir, 0o755); err != nil {
		return Assignment{}, errors.Wrap(err, "creating extraction dir")
	}
	tmp, err := ioutil.TempFile(svc.extractDir, "upload-*.zip")
	if err != nil {
		return Assignment{}, errors.Wrap(err, "creating temp file")
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "buffering upload")
	}
	if n == 0 {
		return Assignment{}, core.NewValidationError(ErrEmptyUpload, core.FieldError{Field: "file", Error: ErrEmptyUpload.Error()})
	}

	// extract next to the current submissions, which are only replaced once everything succeeded
	staging, err := ioutil.TempDir(svc.extractDir, "staging-"+strconv.Itoa(asn.ID)+"-*")
	if err != nil {
		return Assignment{}, errors.Wrap(err, "creating staging dir")
	}
	defer func() { _ = os.RemoveAll(staging) }()

	if err = svc.extractor.Extract(tmp.Name(), staging); err != nil {
		svc.logger.Warn(fmt.Sprintf("assignment.SetSubmissions(%d): %v", asn.ID, err))
		return Assignment{}, core.NewValidationError(ErrBadArchive, core.FieldError{Field: "file", Error: ErrBadArchive.Error()})
	}

	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		return Assignment{}, errors.Wrap(err, "rewinding upload")
	}
	if err = svc.store.Delete(ctx, assignmentPrefix(asn.ID)+"submissions/"); err != nil {
		return Assignment{}, errors.Wrap(err, "deleting previous archive")
	}
	loc, err := svc.store.Save(ctx, assignmentPrefix(asn.ID)+"submissions/"+filename, tmp)
	if err != nil {
		return Assignment{}, errors.Wrap(err, "saving archive")
	}

	dst := filepath.Join(svc.extractDir, strconv.Itoa(asn.ID))
	if err = os.RemoveAll(dst); err != nil {
		return Assignment{}, errors.Wrap(err, "clearing previous submissions")
	}
	if err = os.Rename(staging, dst); err != nil {
		return Assignment{}, errors.Wrap(err, "moving extracted submissions")
	}

	asn.ZipFilePath = loc
	asn.ExtractedFolderPath = dst
	return svc.repo.UpdateAssignment(ctx, asn)
}

// SetSolution stores a freshly generated reference solution.
func (svc *Service) SetSolution(ctx context.Context, asn Assignment, solution string) (Assignment, error) {
	asn.IdealSolution = solution
	asn.SolutionStatus = SolutionGenerated
	asn.SolutionFeedback = ""
	return svc.repo.UpdateAssignment(ctx, asn)
}

// ClearSolution drops the reference solution so a new one gets generated.
func (svc *Service) ClearSolution(ctx context.Context, asn Assignment, feedback string) (Assignment, error) {
	asn.IdealSolution = ""
	asn.SolutionStatus = SolutionRejected
	asn.SolutionFeedback = core.CleanString(feedback)
	return svc.repo.UpdateAssignment(ctx, asn)
}

// VerifySolution records the professor's review of the reference solution.
func (svc *Service) VerifySolution(ctx context.Context, asn Assignment, vs VerifySolution) (Assignment, error) {
	if asn.IdealSolution == "" {
		return Assignment{}, core.NewValidationError(ErrNoSolution, core.FieldError{Field: "approved", Error: ErrNoSolution.Error()})
	}
	asn.SolutionStatus = SolutionRejected
	if *vs.Approved {
		asn.SolutionStatus = SolutionApproved
	}
	asn.SolutionFeedback = vs.Feedback
	return svc.repo.UpdateAssignment(ctx, asn)
}

// Delete removes an assignment with its stored and extracted files.
// Submission results and reports go with it.
func (svc *Service) Delete(ctx context.Context, asn Assignment) error {
	if err := svc.repo.DeleteAssignment(ctx, asn.ID); err != nil {
		return err
	}
	if err := svc.store.Delete(ctx, assignmentPrefix(asn.ID)); err != nil {
		svc.logger.Error(fmt.Sprintf("assignment.Delete(%d): %v", asn.ID, err), err)
	}
	if err := os.RemoveAll(filepath.Join(svc.extractDir, strconv.Itoa(asn.ID))); err != nil {
		svc.logger.Error(fmt.Sprintf("assignment.Delete(%d): %v", asn.ID, err), err)
	}
	return nil
}

// DeleteByProfessor deletes every assignment of a professor.
func (svc *Service) DeleteByProfessor(ctx context.Context, professorID int) error {
	asns, err := svc.repo.QueryAssignments(ctx, &QueryFilter{ProfessorID: professorID}, nil)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	for _, asn := range asns {
		if err = svc.Delete(ctx, asn); err != nil {
			return errors.Wrap(err, "deleting assignment")
		}
	}
	return nil
}
