package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/professor"
)

const professorColumns = `id, name, email, department, password_hash, created_at`

type professorRow struct {
	ID           int         `db:"id"`
	Name         string      `db:"name"`
	Email        string      `db:"email"`
	Department   null.String `db:"department"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
}

type professorRepository struct {
	db *sqlx.DB
}

var _ professor.Repository = (*professorRepository)(nil) // interface compliance check

func NewProfessorRepository(db *sqlx.DB) professor.Repository {
	return &professorRepository{db: db}
}

func (repo *professorRepository) toRow(prof professor.Professor) professorRow {
	return professorRow{
		ID:           prof.ID,
		Name:         prof.Name,
		Email:        prof.Email,
		Department:   null.NewString(prof.Department, prof.Department != ""),
		PasswordHash: null.NewBytes(prof.PasswordHash, len(prof.PasswordHash) > 0),
		CreatedAt:    prof.CreatedAt.UTC(),
	}
}

func (repo *professorRepository) fromRow(row professorRow) professor.Professor {
	return professor.Professor{
		ID:           row.ID,
		Name:         row.Name,
		Email:        row.Email,
		Department:   row.Department.String,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt.UTC(),
	}
}

func (repo *professorRepository) fromRows(rows []professorRow) []professor.Professor {
	profs := make([]professor.Professor, 0, len(rows))
	for _, row := range rows {
		profs = append(profs, repo.fromRow(row))
	}
	return profs
}

// trapNoRowsErr maps psql "no rows" err to professor.ErrNotFound
func (repo *professorRepository) trapNoRowsErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return professor.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (repo *professorRepository) CheckEmailUniqueness(ctx context.Context, email string, excludedIDs ...int) error {
	q := `SELECT EXISTS (SELECT 1 FROM professors WHERE LOWER(email) = LOWER(?)`
	args := []interface{}{email}
	if len(excludedIDs) > 0 {
		q += ` AND id NOT IN (?)`
		args = append(args, excludedIDs)
	}
	q += `)`

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return errors.Wrap(err, "building uniqueness query")
	}
	var exists bool
	if err = repo.db.GetContext(ctx, &exists, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking professor uniqueness")
	}
	if exists {
		return professor.ErrEmailExists
	}
	return nil
}

func (repo *professorRepository) CreateProfessor(ctx context.Context, prof professor.Professor) (professor.Professor, error) {
	if prof.CreatedAt.IsZero() {
		prof.CreatedAt = time.Now().UTC()
	}
	rows, err := repo.db.NamedQueryContext(ctx, `
		INSERT INTO professors (name, email, department, password_hash, created_at)
		VALUES (:name, :email, :department, :password_hash, :created_at)
		RETURNING `+professorColumns, repo.toRow(prof))
	if err != nil {
		return professor.Professor{}, errors.Wrap(err, "inserting professor")
	}
	defer func() { _ = rows.Close() }()

	var row professorRow
	if !rows.Next() {
		return professor.Professor{}, errors.Wrap(rows.Err(), "inserting professor")
	}
	if err = rows.StructScan(&row); err != nil {
		return professor.Professor{}, errors.Wrap(err, "scanning professor")
	}
	return repo.fromRow(row), nil
}

func (repo *professorRepository) QueryProfessors(ctx context.Context, filter *professor.QueryFilter, ordering []core.DBOrdering) ([]professor.Professor, error) {
	q := `SELECT ` + professorColumns + ` FROM professors`
	var args []interface{}
	if filter != nil && filter.Search != "" {
		q += ` WHERE name ILIKE ? OR email ILIKE ? OR department ILIKE ?`
		val := likePattern(filter.Search)
		args = append(args, val, val, val)
	}
	q += orderBy(core.FilterOrderings(ordering, professor.OrderingFields...))

	var rows []professorRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting professors")
	}
	return repo.fromRows(rows), nil
}

func (repo *professorRepository) GetProfessor(ctx context.Context, id int) (professor.Professor, error) {
	var row professorRow
	q := `SELECT ` + professorColumns + ` FROM professors WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return professor.Professor{}, repo.trapNoRowsErr(err, "selecting professor")
	}
	return repo.fromRow(row), nil
}

func (repo *professorRepository) GetProfessorByEmail(ctx context.Context, email string) (professor.Professor, error) {
	var row professorRow
	q := `SELECT ` + professorColumns + ` FROM professors WHERE LOWER(email) = LOWER($1)`
	if err := repo.db.GetContext(ctx, &row, q, email); err != nil {
		return professor.Professor{}, repo.trapNoRowsErr(err, "selecting professor")
	}
	return repo.fromRow(row), nil
}

func (repo *professorRepository) UpdateProfessor(ctx context.Context, prof professor.Professor) (professor.Professor, error) {
	res, err := repo.db.NamedExecContext(ctx, `
		UPDATE professors
		SET name = :name, email = :email, department = :department, password_hash = :password_hash
		WHERE id = :id`, repo.toRow(prof))
	if err != nil {
		return professor.Professor{}, errors.Wrap(err, "updating professor")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return professor.Professor{}, professor.ErrNotFound
	}
	return repo.GetProfessor(ctx, prof.ID)
}

// DeleteProfessor cascades to the professor's assignments.
func (repo *professorRepository) DeleteProfessor(ctx context.Context, id int) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM professors WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting professor")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return professor.ErrNotFound
	}
	return nil
}
