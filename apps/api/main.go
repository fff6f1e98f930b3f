package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // register the /debug/pprof handlers
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/grader/apps/api/echo"
	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
	"github.com/trezcool/grader/core/professor"
	"github.com/trezcool/grader/core/workflow"
	"github.com/trezcool/grader/services/ai"
	emailsvc "github.com/trezcool/grader/services/email"
	"github.com/trezcool/grader/services/filestore"
	logsvc "github.com/trezcool/grader/services/logger"
	"github.com/trezcool/grader/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Wait()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	repos, err := storage.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = repos.Close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := filestore.New(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}

	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	aiSvc := ai.NewService(conf, logger)
	if aiSvc.Offline() {
		logger.Warn("AI service running offline: solutions and grades come from local heuristics")
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
	gradingSvc := grading.NewService(repos.Grading, asnSvc, profSvc, aiSvc, mailSvc, conf, logger)
	workflowSvc := workflow.NewService(repos.Workflow, asnSvc, gradingSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)

	if err := core.ParseEmailTemplates(); err != nil {
		logger.Fatal(fmt.Sprintf("loading email templates: %v", err), err)
	}

	gradingSvc.Start(ctx)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("dbEngine").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			ProfessorSvc:  profSvc,
			AssignmentSvc: asnSvc,
			GradingSvc:    gradingSvc,
			WorkflowSvc:   workflowSvc,
			Validate:      validate,
			Translator:    translator,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		sctx, scancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer scancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(sctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}

		// stop the grading workers; running jobs are marked failed
		cancel()
		gradingSvc.Wait()
	}
}
