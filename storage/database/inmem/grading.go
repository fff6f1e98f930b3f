package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
)

var errReportNotFound = errors.New("grading report not found")

type gradingRepository struct {
	db *DB
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db *DB) grading.Repository {
	return &gradingRepository{db: db}
}

func (repo *gradingRepository) ReplaceResults(_ context.Context, assignmentID int, results []grading.SubmissionResult) ([]grading.SubmissionResult, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignments[assignmentID]; !ok {
		return nil, assignment.ErrNotFound
	}
	for pk, r := range repo.db.results {
		if r.AssignmentID == assignmentID {
			delete(repo.db.results, pk)
		}
	}

	saved := make([]grading.SubmissionResult, 0, len(results))
	for _, r := range results {
		r.ID = repo.db.nextPK("submission_results")
		r.AssignmentID = assignmentID
		res := r
		repo.db.results[res.ID] = &res
		saved = append(saved, res)
	}
	return saved, nil
}

func (repo *gradingRepository) QueryResults(_ context.Context, assignmentID int) ([]grading.SubmissionResult, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	results := make([]grading.SubmissionResult, 0)
	for _, r := range repo.db.results {
		if r.AssignmentID == assignmentID {
			results = append(results, *r)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if c := strings.Compare(results[i].StudentName, results[j].StudentName); c != 0 {
			return c < 0
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

func (repo *gradingRepository) CreateReport(_ context.Context, report grading.Report) (grading.Report, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.assignments[report.AssignmentID]; !ok {
		return grading.Report{}, assignment.ErrNotFound
	}
	report.ID = repo.db.nextPK("grading_reports")
	repo.db.reports[report.ID] = &report
	return report, nil
}

func (repo *gradingRepository) UpdateReport(_ context.Context, report grading.Report) (grading.Report, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.reports[report.ID]
	if !ok {
		return grading.Report{}, errReportNotFound
	}
	orig.TotalSubmissions = report.TotalSubmissions
	orig.GradedSubmissions = report.GradedSubmissions
	orig.AverageScore = report.AverageScore
	return *orig, nil
}

func (repo *gradingRepository) QueryReports(_ context.Context, assignmentID int) ([]grading.Report, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	reports := make([]grading.Report, 0)
	for _, r := range repo.db.reports {
		if r.AssignmentID == assignmentID {
			reports = append(reports, *r)
		}
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].ID > reports[j].ID })
	return reports, nil
}
