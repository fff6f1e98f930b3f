package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core/workflow"
)

type workflowApi struct {
	s *Server
}

func registerWorkflowAPI(g *echo.Group, s *Server) {
	api := workflowApi{s: s}

	g.GET("/professors/:id/workflow", api.retrieve, api.professorMiddleware)
	g.POST("/professors/:id/workflow", api.advance, api.professorMiddleware)
	g.DELETE("/professors/:id/workflow", api.reset, api.professorMiddleware)
}

// professorMiddleware checks the `:id` professor exists and stores their id in the context.
func (api *workflowApi) professorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		if err = api.s.checkOwner(ctx, id); err != nil {
			return err
		}
		if _, err = api.s.deps.ProfessorSvc.GetByID(ctx.Request().Context(), id); err != nil {
			return errors.Wrap(err, "finding professor by ID")
		}
		ctx.Set(objectContextKey, id)
		return next(ctx)
	}
}

func contextProfessorID(ctx echo.Context) (int, error) {
	id, ok := ctx.Get(objectContextKey).(int)
	if !ok {
		return 0, errors.Wrap(errObjNotFoundInCtx, "retrieving professor id from context")
	}
	return id, nil
}

func (api *workflowApi) retrieve(ctx echo.Context) error {
	id, err := contextProfessorID(ctx)
	if err != nil {
		return err
	}
	session, err := api.s.deps.WorkflowSvc.Get(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "getting workflow")
	}
	return ctx.JSON(http.StatusOK, session)
}

func (api *workflowApi) advance(ctx echo.Context) error {
	id, err := contextProfessorID(ctx)
	if err != nil {
		return err
	}

	var data workflow.Input
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to workflow.Input")
	}

	session, err := api.s.deps.WorkflowSvc.Advance(ctx.Request().Context(), id, data)
	if err != nil {
		return errors.Wrap(err, "advancing workflow")
	}
	return ctx.JSON(http.StatusOK, session)
}

func (api *workflowApi) reset(ctx echo.Context) error {
	id, err := contextProfessorID(ctx)
	if err != nil {
		return err
	}
	session, err := api.s.deps.WorkflowSvc.Reset(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "resetting workflow")
	}
	return ctx.JSON(http.StatusOK, session)
}
