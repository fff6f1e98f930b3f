package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
)

const (
	resultColumns = `id, assignment_id, student_name, student_id, submission_path,
		score, max_score, feedback, grading_status, created_at, graded_at`
	reportColumns = `id, assignment_id, report_name, total_submissions, graded_submissions, average_score, created_at`
)

var errReportNotFound = errors.New("grading report not found")

type (
	resultRow struct {
		ID             int          `db:"id"`
		AssignmentID   int          `db:"assignment_id"`
		StudentName    string       `db:"student_name"`
		StudentID      null.String  `db:"student_id"`
		SubmissionPath null.String  `db:"submission_path"`
		Score          null.Float64 `db:"score"`
		MaxScore       null.Float64 `db:"max_score"`
		Feedback       null.String  `db:"feedback"`
		GradingStatus  string       `db:"grading_status"`
		CreatedAt      time.Time    `db:"created_at"`
		GradedAt       null.Time    `db:"graded_at"`
	}

	reportRow struct {
		ID                int          `db:"id"`
		AssignmentID      int          `db:"assignment_id"`
		ReportName        string       `db:"report_name"`
		TotalSubmissions  int          `db:"total_submissions"`
		GradedSubmissions int          `db:"graded_submissions"`
		AverageScore      null.Float64 `db:"average_score"`
		CreatedAt         time.Time    `db:"created_at"`
	}
)

type gradingRepository struct {
	db *sqlx.DB
}

var _ grading.Repository = (*gradingRepository)(nil) // interface compliance check

func NewGradingRepository(db *sqlx.DB) grading.Repository {
	return &gradingRepository{db: db}
}

func (repo *gradingRepository) resultFromRow(row resultRow) grading.SubmissionResult {
	res := grading.SubmissionResult{
		ID:             row.ID,
		AssignmentID:   row.AssignmentID,
		StudentName:    row.StudentName,
		StudentID:      row.StudentID.String,
		SubmissionPath: row.SubmissionPath.String,
		Score:          row.Score.Float64,
		MaxScore:       row.MaxScore.Float64,
		Feedback:       row.Feedback.String,
		GradingStatus:  row.GradingStatus,
		CreatedAt:      row.CreatedAt.UTC(),
	}
	if row.GradedAt.Valid {
		graded := row.GradedAt.Time.UTC()
		res.GradedAt = &graded
	}
	return res
}

func (repo *gradingRepository) reportFromRow(row reportRow) grading.Report {
	return grading.Report{
		ID:                row.ID,
		AssignmentID:      row.AssignmentID,
		ReportName:        row.ReportName,
		TotalSubmissions:  row.TotalSubmissions,
		GradedSubmissions: row.GradedSubmissions,
		AverageScore:      row.AverageScore.Float64,
		CreatedAt:         row.CreatedAt.UTC(),
	}
}

// inTx runs fn in a transaction, rolled back when fn fails.
func (repo *gradingRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

func (repo *gradingRepository) ReplaceResults(ctx context.Context, assignmentID int, results []grading.SubmissionResult) ([]grading.SubmissionResult, error) {
	saved := make([]grading.SubmissionResult, 0, len(results))
	err := repo.inTx(ctx, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM assignments WHERE id = $1)`, assignmentID); err != nil {
			return errors.Wrap(err, "checking assignment")
		}
		if !exists {
			return assignment.ErrNotFound
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM submission_results WHERE assignment_id = $1`, assignmentID); err != nil {
			return errors.Wrap(err, "deleting results")
		}

		for _, r := range results {
			row := resultRow{
				AssignmentID:   assignmentID,
				StudentName:    r.StudentName,
				StudentID:      nullString(r.StudentID),
				SubmissionPath: nullString(r.SubmissionPath),
				Score:          null.Float64From(r.Score),
				MaxScore:       null.Float64From(r.MaxScore),
				Feedback:       nullString(r.Feedback),
				GradingStatus:  r.GradingStatus,
				CreatedAt:      r.CreatedAt.UTC(),
				GradedAt:       null.TimeFromPtr(r.GradedAt),
			}
			if row.CreatedAt.IsZero() {
				row.CreatedAt = time.Now().UTC()
			}
			if err := tx.GetContext(ctx, &row.ID, `
				INSERT INTO submission_results (
					assignment_id, student_name, student_id, submission_path,
					score, max_score, feedback, grading_status, created_at, graded_at
				) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
				RETURNING id`,
				row.AssignmentID, row.StudentName, row.StudentID, row.SubmissionPath,
				row.Score, row.MaxScore, row.Feedback, row.GradingStatus, row.CreatedAt, row.GradedAt,
			); err != nil {
				return errors.Wrap(err, "inserting result")
			}
			saved = append(saved, repo.resultFromRow(row))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (repo *gradingRepository) QueryResults(ctx context.Context, assignmentID int) ([]grading.SubmissionResult, error) {
	var rows []resultRow
	q := `SELECT ` + resultColumns + ` FROM submission_results WHERE assignment_id = $1 ORDER BY student_name, id`
	if err := repo.db.SelectContext(ctx, &rows, q, assignmentID); err != nil {
		return nil, errors.Wrap(err, "selecting results")
	}
	results := make([]grading.SubmissionResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, repo.resultFromRow(row))
	}
	return results, nil
}

func (repo *gradingRepository) CreateReport(ctx context.Context, report grading.Report) (grading.Report, error) {
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}
	var row reportRow
	err := repo.db.GetContext(ctx, &row, `
		INSERT INTO grading_reports (assignment_id, report_name, total_submissions, graded_submissions, average_score, created_at)
		SELECT id, $2, $3, $4, $5, $6 FROM assignments WHERE id = $1
		RETURNING `+reportColumns,
		report.AssignmentID, report.ReportName, report.TotalSubmissions, report.GradedSubmissions,
		null.Float64From(report.AverageScore), report.CreatedAt.UTC(),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grading.Report{}, assignment.ErrNotFound
		}
		return grading.Report{}, errors.Wrap(err, "inserting report")
	}
	return repo.reportFromRow(row), nil
}

func (repo *gradingRepository) UpdateReport(ctx context.Context, report grading.Report) (grading.Report, error) {
	var row reportRow
	err := repo.db.GetContext(ctx, &row, `
		UPDATE grading_reports
		SET total_submissions = $2, graded_submissions = $3, average_score = $4
		WHERE id = $1
		RETURNING `+reportColumns,
		report.ID, report.TotalSubmissions, report.GradedSubmissions, null.Float64From(report.AverageScore),
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return grading.Report{}, errReportNotFound
		}
		return grading.Report{}, errors.Wrap(err, "updating report")
	}
	return repo.reportFromRow(row), nil
}

func (repo *gradingRepository) QueryReports(ctx context.Context, assignmentID int) ([]grading.Report, error) {
	var rows []reportRow
	q := `SELECT ` + reportColumns + ` FROM grading_reports WHERE assignment_id = $1 ORDER BY created_at DESC, id DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, assignmentID); err != nil {
		return nil, errors.Wrap(err, "selecting reports")
	}
	reports := make([]grading.Report, 0, len(rows))
	for _, row := range rows {
		reports = append(reports, repo.reportFromRow(row))
	}
	return reports, nil
}
