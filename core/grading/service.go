package grading

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"strconv"
	"sync"

	"github.com/kat-co/vala"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/professor"
)

var (
	// errors
	ErrJobNotFound     = core.NewNotFoundError("grading job not found")
	ErrNoSubmissions   = errors.New("no submissions uploaded for this assignment")
	ErrNoFiles         = errors.New("no submission files found")
	ErrJobRunning      = core.NewConflictError("a grading job is already running for this assignment")
	ErrQueueFull       = core.NewConflictError("the grading queue is full, try again later")
	errServiceStopped  = errors.New("grading service stopped")
	averageCachePrefix = "avg:"
)

type (
	Repository interface {
		// ReplaceResults deletes the assignment's previous results and stores the new ones.
		ReplaceResults(ctx context.Context, assignmentID int, results []SubmissionResult) ([]SubmissionResult, error)
		// QueryResults returns an assignment's results ordered by student name.
		QueryResults(ctx context.Context, assignmentID int) ([]SubmissionResult, error)
		CreateReport(ctx context.Context, report Report) (Report, error)
		UpdateReport(ctx context.Context, report Report) (Report, error)
		// QueryReports returns an assignment's reports, newest first.
		QueryReports(ctx context.Context, assignmentID int) ([]Report, error)
	}

	AssignmentService interface {
		GetByID(ctx context.Context, id int) (assignment.Assignment, error)
		Query(ctx context.Context, filter *assignment.QueryFilter, ordering []core.DBOrdering) ([]assignment.Assignment, error)
		SetSolution(ctx context.Context, asn assignment.Assignment, solution string) (assignment.Assignment, error)
	}

	ProfessorGetter interface {
		GetByID(ctx context.Context, id int) (professor.Professor, error)
	}

	Service struct {
		repo    Repository
		asns    AssignmentService
		profs   ProfessorGetter
		ai      core.AIService
		mailSvc core.EmailService
		conf    *core.Config
		logger  core.Logger

		averages *cache.Cache // {avg:<assignmentID>: Average}

		jobs    *cache.Cache // {<jobID>: Job, asn:<assignmentID>: jobID}
		jobsMu  sync.Mutex
		busy    map[int]bool // assignments being graded or uploaded
		busyMu  sync.Mutex
		queue   chan jobTask
		started bool
		stopped chan struct{}
		wg      sync.WaitGroup
	}
)

func NewService(
	repo Repository,
	asns AssignmentService,
	profs ProfessorGetter,
	ai core.AIService,
	mailSvc core.EmailService,
	conf *core.Config,
	logger core.Logger,
) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(asns, "asns"),
		vala.IsNotNil(profs, "profs"),
		vala.IsNotNil(ai, "ai"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
	).CheckAndPanic()

	queueSize := conf.Grading.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	return &Service{
		repo:     repo,
		asns:     asns,
		profs:    profs,
		ai:       ai,
		mailSvc:  mailSvc,
		conf:     conf,
		logger:   logger,
		averages: cache.New(conf.Grading.CacheTTL, 2*conf.Grading.CacheTTL),
		jobs:     cache.New(conf.Grading.JobTTL, conf.Grading.JobTTL/2),
		queue:    make(chan jobTask, queueSize),
		busy:     make(map[int]bool),
		stopped:  make(chan struct{}),
	}
}

// GenerateSolution generates and stores a reference solution for an assignment.
// A non-empty rubric replaces the assignment's own for this generation.
func (svc *Service) GenerateSolution(ctx context.Context, asn assignment.Assignment, rubric string) (assignment.Assignment, error) {
	if rubric = core.CleanString(rubric); rubric == "" {
		rubric = asn.Rubric
	}
	solution, err := svc.ai.GenerateSolution(ctx, core.SolutionRequest{
		Question:  asn.Prompt(),
		Rubric:    rubric,
		MaxPoints: asn.MaxPoints,
	})
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "generating solution")
	}
	return svc.asns.SetSolution(ctx, asn, solution)
}

func (svc *Service) Submissions(ctx context.Context, asn assignment.Assignment) ([]SubmissionResult, error) {
	return svc.repo.QueryResults(ctx, asn.ID)
}

func (svc *Service) Grades(ctx context.Context, asn assignment.Assignment) ([]Grade, error) {
	results, err := svc.repo.QueryResults(ctx, asn.ID)
	if err != nil {
		return nil, errors.Wrap(err, "querying results")
	}
	grades := make([]Grade, 0, len(results))
	for _, r := range results {
		grades = append(grades, r.Grade())
	}
	return grades, nil
}

func (svc *Service) Reports(ctx context.Context, asn assignment.Assignment) ([]Report, error) {
	return svc.repo.QueryReports(ctx, asn.ID)
}

func averageCacheKey(assignmentID int) string {
	return averageCachePrefix + strconv.Itoa(assignmentID)
}

func (svc *Service) invalidateAverage(assignmentID int) {
	svc.averages.Delete(averageCacheKey(assignmentID))
}

// Average aggregates the graded results of an assignment. Results are cached until the next grading run.
func (svc *Service) Average(ctx context.Context, assignmentID int) (Average, error) {
	key := averageCacheKey(assignmentID)
	if avg, ok := svc.averages.Get(key); ok {
		return avg.(Average), nil
	}

	results, err := svc.repo.QueryResults(ctx, assignmentID)
	if err != nil {
		return Average{}, errors.Wrap(err, "querying results")
	}
	avg := Average{AssignmentID: assignmentID}
	var totalScore, totalPct float64
	for _, r := range results {
		if r.GradingStatus != core.GradeStatusGraded {
			continue
		}
		avg.GradedSubmissions++
		totalScore += r.Score
		totalPct += r.Percentage()
	}
	if avg.GradedSubmissions > 0 {
		avg.AverageScore = round1(totalScore / float64(avg.GradedSubmissions))
		avg.AveragePercentage = round1(totalPct / float64(avg.GradedSubmissions))
	}

	svc.averages.SetDefault(key, avg)
	return avg, nil
}

// ClassAverage averages the percentages of every graded assignment, optionally of one professor only.
func (svc *Service) ClassAverage(ctx context.Context, professorID int) (ClassAverage, error) {
	asns, err := svc.asns.Query(ctx, &assignment.QueryFilter{ProfessorID: professorID}, nil)
	if err != nil {
		return ClassAverage{}, errors.Wrap(err, "querying assignments")
	}

	var (
		class ClassAverage
		total float64
	)
	for _, asn := range asns {
		avg, err := svc.Average(ctx, asn.ID)
		if err != nil {
			return ClassAverage{}, err
		}
		if avg.GradedSubmissions == 0 {
			continue
		}
		class.GradedAssignments++
		class.TotalSubmissions += avg.GradedSubmissions
		total += avg.AveragePercentage
	}
	if class.GradedAssignments > 0 {
		class.ClassAverage = round1(total / float64(class.GradedAssignments))
	}
	return class, nil
}

// Annotate fills the derived AverageScore and IsGraded fields of assignments.
func (svc *Service) Annotate(ctx context.Context, asns ...assignment.Assignment) ([]assignment.Assignment, error) {
	for i := range asns {
		avg, err := svc.Average(ctx, asns[i].ID)
		if err != nil {
			return nil, err
		}
		if avg.GradedSubmissions > 0 {
			pct := avg.AveragePercentage
			asns[i].AverageScore = &pct
			asns[i].IsGraded = true
		}
	}
	return asns, nil
}

type notification struct {
	ProfessorName   string
	AssignmentTitle string
	AssignmentID    int
	Total           int
	Graded          int
	AverageScore    float64
	MaxPoints       int
	Error           string
}

func (svc *Service) notify(ctx context.Context, asn assignment.Assignment, summary *Summary, runErr error) {
	prof, err := svc.profs.GetByID(ctx, asn.ProfessorID)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("grading.notify(%d): %v", asn.ID, err))
		return
	}

	data := notification{
		ProfessorName:   prof.Name,
		AssignmentTitle: asn.Title,
		AssignmentID:    asn.ID,
		MaxPoints:       asn.MaxPoints,
	}
	msg := &core.EmailMessage{To: []mail.Address{{Name: prof.Name, Address: prof.Email}}}
	if runErr != nil {
		data.Error = runErr.Error()
		msg.Subject = "Grading failed: " + asn.Title
		msg.TemplateName = "grading_failed"
	} else {
		data.Total = summary.TotalSubmissions
		data.Graded = summary.SuccessfulGrades
		data.AverageScore = summary.AverageScore
		msg.Subject = "Grading completed: " + asn.Title
		msg.TemplateName = "grading_completed"

		var buf bytes.Buffer
		if err = svc.WriteCSV(ctx, asn, &buf); err != nil {
			svc.logger.Warn(fmt.Sprintf("grading.notify(%d): %v", asn.ID, err))
		} else if err = msg.Attach(&buf, CSVFilename(asn.ID), "text/csv"); err != nil {
			svc.logger.Warn(fmt.Sprintf("grading.notify(%d): %v", asn.ID, err))
		}
	}
	msg.TemplateData = data
	svc.mailSvc.SendMessages(msg)
}
