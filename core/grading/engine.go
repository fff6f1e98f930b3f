package grading

import (
	"context"
	"fmt"
	"io/fs"
	"io/ioutil"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
)

// LMS exports name files `<student>_<studentID>_<submissionID>_<original name>`.
var studentIDRe = regexp.MustCompile(`^[^_]+_(\d+)_\d+_`)

// MaxReportNameLength is the size of the grading_reports.report_name column.
const MaxReportNameLength = 255

const reportSuffix = " - AI Grading Report"

// reportName shortens long titles so the name fits MaxReportNameLength.
func reportName(title string) string {
	if limit := MaxReportNameLength - utf8.RuneCountInString(reportSuffix); utf8.RuneCountInString(title) > limit {
		title = string([]rune(title)[:limit])
	}
	return title + reportSuffix
}

// ProgressFunc is called each time a submission is graded.
type ProgressFunc func(total, graded int)

func (svc *Service) hasExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range svc.conf.Grading.Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// submissionFiles lists the gradable files of an assignment, sorted by path.
func (svc *Service) submissionFiles(asn assignment.Assignment) ([]string, error) {
	if asn.ExtractedFolderPath == "" {
		return nil, core.NewValidationError(ErrNoSubmissions, core.FieldError{Field: "file", Error: ErrNoSubmissions.Error()})
	}

	var files []string
	err := filepath.WalkDir(asn.ExtractedFolderPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && svc.hasExtension(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.NewValidationError(ErrNoSubmissions, core.FieldError{Field: "file", Error: ErrNoSubmissions.Error()})
		}
		return nil, errors.Wrap(err, "listing submissions")
	}
	if len(files) == 0 {
		return nil, core.NewValidationError(ErrNoFiles, core.FieldError{Field: "file", Error: ErrNoFiles.Error()})
	}
	sort.Strings(files)
	return files, nil
}

func studentFromPath(path string) (name, id string) {
	base := filepath.Base(path)
	name = strings.TrimSuffix(base, filepath.Ext(base))
	if m := studentIDRe.FindStringSubmatch(name); m != nil {
		id = m[1]
	}
	return name, id
}

// Grade grades every extracted submission of an assignment and replaces its previous results.
// It fails with ErrJobRunning while another run or upload holds the assignment.
func (svc *Service) Grade(ctx context.Context, asn assignment.Assignment, opts GradeOptions) (Summary, error) {
	release, err := svc.Reserve(asn.ID)
	if err != nil {
		return Summary{}, err
	}
	defer release()
	return svc.GradeReserved(ctx, asn, opts)
}

// GradeReserved is Grade for a caller already holding the assignment's reservation.
func (svc *Service) GradeReserved(ctx context.Context, asn assignment.Assignment, opts GradeOptions) (Summary, error) {
	summary, err := svc.grade(ctx, asn, opts, nil)
	if err != nil {
		return Summary{}, err
	}
	svc.notify(ctx, asn, &summary, nil)
	return summary, nil
}

func (svc *Service) grade(ctx context.Context, asn assignment.Assignment, opts GradeOptions, progress ProgressFunc) (Summary, error) {
	files, err := svc.submissionFiles(asn)
	if err != nil {
		return Summary{}, err
	}

	rubric := asn.Rubric
	if opts.Rubric != nil && *opts.Rubric != "" {
		rubric = *opts.Rubric
	}
	maxPoints := asn.MaxPoints
	if opts.MaxPoints != nil {
		maxPoints = *opts.MaxPoints
	}
	if maxPoints <= 0 {
		maxPoints = assignment.DefaultMaxPoints
	}

	// reference solution
	solution := asn.IdealSolution
	if !asn.HasSolution() {
		solution, err = svc.ai.GenerateSolution(ctx, core.SolutionRequest{Question: asn.Prompt(), Rubric: rubric, MaxPoints: maxPoints})
		if err != nil {
			return Summary{}, errors.Wrap(err, "generating solution")
		}
		if asn, err = svc.asns.SetSolution(ctx, asn, solution); err != nil {
			return Summary{}, errors.Wrap(err, "saving solution")
		}
	}

	report, err := svc.repo.CreateReport(ctx, Report{
		AssignmentID:     asn.ID,
		ReportName:       reportName(asn.Title),
		TotalSubmissions: len(files),
		CreatedAt:        time.Now().UTC(),
	})
	if err != nil {
		return Summary{}, errors.Wrap(err, "creating report")
	}
	if progress != nil {
		progress(len(files), 0)
	}

	results := make([]SubmissionResult, len(files))
	answered := make([]bool, len(files)) // the grader returned a result, even an unparsable one
	workers := svc.conf.Grading.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(files) {
		workers = len(files)
	}

	var (
		wg      sync.WaitGroup
		graded  int64
		errOnce sync.Once
		runErr  error
		idxs    = make(chan int)
	)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range idxs {
				res, ok, err := svc.gradeFile(runCtx, asn, files[i], rubric, solution, maxPoints)
				if err != nil {
					errOnce.Do(func() {
						runErr = err
						cancel()
					})
					continue
				}
				results[i] = res
				answered[i] = ok
				n := atomic.AddInt64(&graded, 1)
				if progress != nil {
					progress(len(files), int(n))
				}
			}
		}()
	}

feed:
	for i := range files {
		select {
		case idxs <- i:
		case <-runCtx.Done():
			break feed
		}
	}
	close(idxs)
	wg.Wait()

	if runErr == nil {
		runErr = ctx.Err()
	}
	if runErr != nil {
		return Summary{}, errors.Wrap(runErr, "grading submissions")
	}

	saved, err := svc.repo.ReplaceResults(ctx, asn.ID, results)
	if err != nil {
		return Summary{}, errors.Wrap(err, "saving results")
	}

	var (
		successful int
		totalScore float64
	)
	for i, r := range results {
		if answered[i] {
			successful++
			totalScore += r.Score
		}
	}
	report.GradedSubmissions = successful
	if successful > 0 {
		report.AverageScore = totalScore / float64(successful)
	}
	if report, err = svc.repo.UpdateReport(ctx, report); err != nil {
		return Summary{}, errors.Wrap(err, "updating report")
	}
	svc.invalidateAverage(asn.ID)

	svc.logger.Info(fmt.Sprintf("grading.Grade(%d): %d/%d submissions graded", asn.ID, successful, len(files)))
	return Summary{
		ReportID:          report.ID,
		AssignmentID:      asn.ID,
		GeneratedSolution: solution,
		Results:           saved,
		AverageScore:      report.AverageScore,
		TotalSubmissions:  len(files),
		SuccessfulGrades:  successful,
	}, nil
}

// gradeFile only fails when ctx is done. Grader errors are recorded on the result and reported by ok=false.
func (svc *Service) gradeFile(ctx context.Context, asn assignment.Assignment, path, rubric, solution string, maxPoints int) (res SubmissionResult, ok bool, err error) {
	name, studentID := studentFromPath(path)
	code, err := ioutil.ReadFile(path)
	if err != nil {
		svc.logger.Warn(fmt.Sprintf("grading.gradeFile(%s): %v", path, err))
	}

	res = SubmissionResult{
		AssignmentID:   asn.ID,
		StudentName:    name,
		StudentID:      studentID,
		SubmissionPath: path,
		MaxScore:       float64(maxPoints),
		CreatedAt:      time.Now().UTC(),
	}

	out, err := svc.ai.GradeSubmission(ctx, core.GradeRequest{
		StudentName: name,
		Code:        string(code),
		Question:    asn.Prompt(),
		Rubric:      rubric,
		Solution:    solution,
		MaxPoints:   maxPoints,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return SubmissionResult{}, false, ctxErr
		}
		res.GradingStatus = core.GradeStatusError
		res.Feedback = "Grading error: " + err.Error()
		return res, false, nil
	}

	now := time.Now().UTC()
	res.Score = out.Score
	res.Feedback = out.Feedback
	res.GradingStatus = out.Status
	res.GradedAt = &now
	return res, true, nil
}
