package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
	"github.com/trezcool/grader/core/professor"
	"github.com/trezcool/grader/services/ai"
	emailsvc "github.com/trezcool/grader/services/email"
	"github.com/trezcool/grader/services/filestore"
	logsvc "github.com/trezcool/grader/services/logger"
	"github.com/trezcool/grader/storage"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	repos, err := storage.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	var db *sql.DB
	if repos.DB != nil {
		db = repos.DB.DB
	}

	// set up services
	store, err := filestore.New(context.Background(), conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}
	profSvc := professor.NewService(repos.Professors)
	asnSvc := assignment.NewService(
		repos.Assignments,
		profSvc,
		store,
		filestore.ZipExtractor{MaxSize: conf.Uploads.MaxExtractedSize},
		filepath.Join(conf.Uploads.Dir, "extracted"),
		logger,
	)
	gradingSvc := grading.NewService(
		repos.Grading,
		asnSvc,
		profSvc,
		ai.NewService(conf, logger),
		emailsvc.NewConsoleService(conf),
		conf,
		logger,
	)

	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	if err := core.ParseEmailTemplates(); err != nil {
		logger.Fatal(fmt.Sprintf("loading email templates: %v", err), err)
	}

	// start CLI
	cli := commandLine{
		db:         db,
		profSvc:    profSvc,
		asnSvc:     asnSvc,
		gradingSvc: gradingSvc,
		validate:   validate,
		out:        os.Stdout,
	}
	err = cli.run(os.Args)
	if cErr := repos.Close(); cErr != nil {
		logger.Error(fmt.Sprintf("closing database: %v", cErr), cErr)
	}
	logger.Wait()
	if err != nil {
		if err != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
