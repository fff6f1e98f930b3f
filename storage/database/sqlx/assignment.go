package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
)

const assignmentColumns = `id, title, description, due_date, max_points, professor_id, created_at,
	question_file_path, question_text, zip_file_path, extracted_folder_path,
	rubric, ideal_solution, solution_status, solution_feedback`

type assignmentRow struct {
	ID                  int         `db:"id"`
	Title               string      `db:"title"`
	Description         null.String `db:"description"`
	DueDate             null.Time   `db:"due_date"`
	MaxPoints           int         `db:"max_points"`
	ProfessorID         int         `db:"professor_id"`
	CreatedAt           time.Time   `db:"created_at"`
	QuestionFilePath    null.String `db:"question_file_path"`
	QuestionText        null.String `db:"question_text"`
	ZipFilePath         null.String `db:"zip_file_path"`
	ExtractedFolderPath null.String `db:"extracted_folder_path"`
	Rubric              null.String `db:"rubric"`
	IdealSolution       null.String `db:"ideal_solution"`
	SolutionStatus      string      `db:"solution_status"`
	SolutionFeedback    null.String `db:"solution_feedback"`
}

func nullString(s string) null.String {
	return null.NewString(s, s != "")
}

type assignmentRepository struct {
	db *sqlx.DB
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *sqlx.DB) assignment.Repository {
	return &assignmentRepository{db: db}
}

func (repo *assignmentRepository) toRow(asn assignment.Assignment) assignmentRow {
	row := assignmentRow{
		ID:                  asn.ID,
		Title:               asn.Title,
		Description:         nullString(asn.Description),
		MaxPoints:           asn.MaxPoints,
		ProfessorID:         asn.ProfessorID,
		CreatedAt:           asn.CreatedAt.UTC(),
		QuestionFilePath:    nullString(asn.QuestionFilePath),
		QuestionText:        nullString(asn.QuestionText),
		ZipFilePath:         nullString(asn.ZipFilePath),
		ExtractedFolderPath: nullString(asn.ExtractedFolderPath),
		Rubric:              nullString(asn.Rubric),
		IdealSolution:       nullString(asn.IdealSolution),
		SolutionStatus:      asn.SolutionStatus,
		SolutionFeedback:    nullString(asn.SolutionFeedback),
	}
	if asn.DueDate != nil {
		row.DueDate = null.TimeFrom(asn.DueDate.UTC())
	}
	if row.SolutionStatus == "" {
		row.SolutionStatus = assignment.SolutionNone
	}
	return row
}

func (repo *assignmentRepository) fromRow(row assignmentRow) assignment.Assignment {
	asn := assignment.Assignment{
		ID:                  row.ID,
		Title:               row.Title,
		Description:         row.Description.String,
		MaxPoints:           row.MaxPoints,
		ProfessorID:         row.ProfessorID,
		CreatedAt:           row.CreatedAt.UTC(),
		QuestionFilePath:    row.QuestionFilePath.String,
		QuestionText:        row.QuestionText.String,
		ZipFilePath:         row.ZipFilePath.String,
		ExtractedFolderPath: row.ExtractedFolderPath.String,
		Rubric:              row.Rubric.String,
		IdealSolution:       row.IdealSolution.String,
		SolutionStatus:      row.SolutionStatus,
		SolutionFeedback:    row.SolutionFeedback.String,
	}
	if row.DueDate.Valid {
		due := row.DueDate.Time.UTC()
		asn.DueDate = &due
	}
	return asn
}

// trapNoRowsErr maps psql "no rows" err to assignment.ErrNotFound
func (repo *assignmentRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return assignment.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *assignmentRepository) CreateAssignment(ctx context.Context, asn assignment.Assignment) (assignment.Assignment, error) {
	if asn.CreatedAt.IsZero() {
		asn.CreatedAt = time.Now().UTC()
	}
	rows, err := repo.db.NamedQueryContext(ctx, `
		INSERT INTO assignments (
			title, description, due_date, max_points, professor_id, created_at,
			question_file_path, question_text, zip_file_path, extracted_folder_path,
			rubric, ideal_solution, solution_status, solution_feedback
		) VALUES (
			:title, :description, :due_date, :max_points, :professor_id, :created_at,
			:question_file_path, :question_text, :zip_file_path, :extracted_folder_path,
			:rubric, :ideal_solution, :solution_status, :solution_feedback
		) RETURNING `+assignmentColumns, repo.toRow(asn))
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "inserting assignment")
	}
	defer func() { _ = rows.Close() }()

	var row assignmentRow
	if !rows.Next() {
		return assignment.Assignment{}, errors.Wrap(rows.Err(), "inserting assignment")
	}
	if err = rows.StructScan(&row); err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "scanning assignment")
	}
	return repo.fromRow(row), nil
}

func (repo *assignmentRepository) QueryAssignments(ctx context.Context, filter *assignment.QueryFilter, ordering []core.DBOrdering) ([]assignment.Assignment, error) {
	q := `SELECT ` + assignmentColumns + ` FROM assignments WHERE TRUE`
	var args []interface{}
	if filter != nil {
		if filter.ProfessorID != 0 {
			q += ` AND professor_id = ?`
			args = append(args, filter.ProfessorID)
		}
		if filter.Search != "" {
			q += ` AND (title ILIKE ? OR description ILIKE ?)`
			val := likePattern(filter.Search)
			args = append(args, val, val)
		}
	}
	q += orderBy(core.FilterOrderings(ordering, assignment.OrderingFields...))

	var rows []assignmentRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting assignments")
	}
	asns := make([]assignment.Assignment, 0, len(rows))
	for _, row := range rows {
		asns = append(asns, repo.fromRow(row))
	}
	return asns, nil
}

func (repo *assignmentRepository) GetAssignment(ctx context.Context, id int) (assignment.Assignment, error) {
	var row assignmentRow
	q := `SELECT ` + assignmentColumns + ` FROM assignments WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return assignment.Assignment{}, repo.trapNoRowsErr(err, "selecting assignment")
	}
	return repo.fromRow(row), nil
}

// UpdateAssignment never changes the professor or the creation date.
func (repo *assignmentRepository) UpdateAssignment(ctx context.Context, asn assignment.Assignment) (assignment.Assignment, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE assignments SET
			title = :title,
			description = :description,
			due_date = :due_date,
			max_points = :max_points,
			question_file_path = :question_file_path,
			question_text = :question_text,
			zip_file_path = :zip_file_path,
			extracted_folder_path = :extracted_folder_path,
			rubric = :rubric,
			ideal_solution = :ideal_solution,
			solution_status = :solution_status,
			solution_feedback = :solution_feedback
		WHERE id = :id`, repo.toRow(asn))
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "updating assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	return repo.GetAssignment(ctx, asn.ID)
}

// DeleteAssignment cascades to the assignment's results and reports.
func (repo *assignmentRepository) DeleteAssignment(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM assignments WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return assignment.ErrNotFound
	}
	return nil
}
