// Package storage opens the repositories selected by the database engine config.
package storage

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
	"github.com/trezcool/grader/core/professor"
	"github.com/trezcool/grader/core/workflow"
	"github.com/trezcool/grader/storage/database"
	boltdb "github.com/trezcool/grader/storage/database/bolt"
	inmemdb "github.com/trezcool/grader/storage/database/inmem"
	sqlxrepos "github.com/trezcool/grader/storage/database/sqlx"
)

type Repositories struct {
	Professors  professor.Repository
	Assignments assignment.Repository
	Grading     grading.Repository
	Workflow    workflow.Store

	// DB is nil with the inmem engine.
	DB *sqlx.DB

	closers []func() error
}

// Open returns the repositories of `database.engine`.
// With postgres, the database is created if missing and migrated up; workflow sessions go to a bbolt file.
func Open(conf *core.Config) (*Repositories, error) {
	switch conf.Database.Engine {
	case "inmem":
		db := inmemdb.Open()
		return &Repositories{
			Professors:  inmemdb.NewProfessorRepository(db),
			Assignments: inmemdb.NewAssignmentRepository(db),
			Grading:     inmemdb.NewGradingRepository(db),
			Workflow:    inmemdb.NewWorkflowStore(),
		}, nil
	case "", "postgres":
		return openPostgres(conf)
	default:
		return nil, errors.Errorf("unknown database engine %q", conf.Database.Engine)
	}
}

func openPostgres(conf *core.Config) (*Repositories, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db.DB, "up"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrating database")
	}

	store, err := boltdb.Open(conf.WorkflowPath)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		Professors:  sqlxrepos.NewProfessorRepository(db),
		Assignments: sqlxrepos.NewAssignmentRepository(db),
		Grading:     sqlxrepos.NewGradingRepository(db),
		Workflow:    store,
		DB:          db,
		closers:     []func() error{store.Close, db.Close},
	}, nil
}

// Close releases the underlying connections. It returns the first error met.
func (r *Repositories) Close() error {
	var first error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
