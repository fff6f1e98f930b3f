package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
	"github.com/trezcool/grader/core/professor"
	"github.com/trezcool/grader/core/workflow"
)

type (
	ServerDeps struct {
		Conf           *core.Config
		Logger         core.Logger
		ProfessorSvc   *professor.Service
		AssignmentSvc  *assignment.Service
		GradingSvc     *grading.Service
		WorkflowSvc    *workflow.Service
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
	}

	Server struct {
		app       *echo.Echo
		deps      ServerDeps
		jwtConfig middleware.JWTConfig
		errors    chan error
		shutdown  chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		app:      echo.New(),
		deps:     deps,
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.jwtConfig = newJWTConfig(deps.Conf)
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORS())
	if conf.Server.BodyLimit != "" {
		s.app.Use(middleware.BodyLimit(conf.Server.BodyLimit))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	api := s.app.Group("/api")
	api.GET("/health", s.health)

	jwt := middleware.JWTWithConfig(s.jwtConfig)
	auth := func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	if conf.Server.RequireAuth {
		auth = jwt
	}

	registerAuthAPI(api, jwt, s)

	g := api.Group("", auth)
	registerProfessorAPI(g, s)
	registerAssignmentAPI(g, s)
	registerGradingAPI(g, s)
	registerWorkflowAPI(g, s)
}

// Start serves HTTP until Shutdown or Close is called. Failures are reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

type HealthResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

func (s *Server) health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, HealthResponse{
		Message: s.deps.Conf.AppName + " API is running",
		Version: s.deps.Conf.Build,
		Status:  "healthy",
	})
}
