package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core/professor"
)

const objectContextKey = "object"

var errObjNotFoundInCtx = errors.New("object not found in echo.Context")

type professorApi struct {
	s *Server
}

func registerProfessorAPI(g *echo.Group, s *Server) {
	api := professorApi{s: s}

	pg := g.Group("/professors")
	pg.GET("", api.query)
	pg.POST("", api.create)

	// detail endpoints
	dg := pg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

// objectMiddleware loads the `:id` professor into the context.
func (api *professorApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		id, err := paramID(ctx, "id")
		if err != nil {
			return err
		}
		if err = api.s.checkOwner(ctx, id); err != nil {
			return err
		}
		prof, err := api.s.deps.ProfessorSvc.GetByID(ctx.Request().Context(), id)
		if err != nil {
			return errors.Wrap(err, "finding professor by ID")
		}
		ctx.Set(objectContextKey, prof)
		return next(ctx)
	}
}

func contextProfessor(ctx echo.Context) (professor.Professor, error) {
	prof, ok := ctx.Get(objectContextKey).(professor.Professor)
	if !ok {
		return professor.Professor{}, errors.Wrap(errObjNotFoundInCtx, "retrieving professor from context")
	}
	return prof, nil
}

func (api *professorApi) query(ctx echo.Context) error {
	filter := new(professor.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []professor.Professor{})
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	profs, err := api.s.deps.ProfessorSvc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying professors")
	}
	if profs == nil {
		profs = []professor.Professor{}
	}
	return ctx.JSON(http.StatusOK, profs)
}

func (api *professorApi) create(ctx echo.Context) error {
	var data professor.NewProfessor
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewProfessor")
	}
	if err := data.Validate(api.s.deps.Validate, api.s.deps.ProfessorSvc); err != nil {
		return err
	}

	prof, err := api.s.deps.ProfessorSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating professor")
	}
	return ctx.JSON(http.StatusCreated, prof)
}

func (api *professorApi) retrieve(ctx echo.Context) error {
	prof, err := contextProfessor(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, prof)
}

func (api *professorApi) update(ctx echo.Context) error {
	prof, err := contextProfessor(ctx)
	if err != nil {
		return err
	}

	var data professor.UpdateProfessor
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfessor")
	}
	if err = data.Validate(prof, api.s.deps.Validate, api.s.deps.ProfessorSvc); err != nil {
		return err
	}

	prof, err = api.s.deps.ProfessorSvc.Update(ctx.Request().Context(), prof, data)
	if err != nil {
		return errors.Wrap(err, "updating professor")
	}
	return ctx.JSON(http.StatusOK, prof)
}

// destroy removes the professor with their assignments and uploaded files.
func (api *professorApi) destroy(ctx echo.Context) error {
	prof, err := contextProfessor(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()

	if err = api.s.deps.AssignmentSvc.DeleteByProfessor(rctx, prof.ID); err != nil {
		return errors.Wrap(err, "deleting assignments")
	}
	if err = api.s.deps.ProfessorSvc.Delete(rctx, prof.ID); err != nil {
		return errors.Wrap(err, "deleting professor")
	}
	if _, err = api.s.deps.WorkflowSvc.Reset(rctx, prof.ID); err != nil {
		api.s.deps.Logger.Warn("echoapi.professor.destroy: " + err.Error())
	}
	return ctx.NoContent(http.StatusNoContent)
}
