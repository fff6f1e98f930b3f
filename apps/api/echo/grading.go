package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core/grading"
)

type gradingApi struct {
	s *Server
}

func registerGradingAPI(g *echo.Group, s *Server) {
	api := gradingApi{s: s}

	g.POST("/generate-solution/:assignmentId", api.generateSolution, s.assignmentMiddleware("assignmentId"))
	g.GET("/class-average", api.classAverage)

	// the assignment detail group belongs to the assignment API, middleware is set per route
	asn := s.assignmentMiddleware("id")
	g.POST("/assignments/:id/grade", api.grade, asn)
	g.POST("/assignments/:id/grade-async", api.gradeAsync, asn)
	g.GET("/assignments/:id/grading-status", api.status, asn)
	g.GET("/assignments/:id/grades", api.grades, asn)
	g.GET("/assignments/:id/submissions", api.submissions, asn)
	g.GET("/assignments/:id/reports", api.reports, asn)
	g.GET("/assignments/:id/average", api.average, asn)
	g.GET("/assignments/:id/download-csv", api.downloadCSV, asn)
}

type (
	GenerateSolutionRequest struct {
		Rubric string `json:"rubric"`
	}

	GenerateSolutionResponse struct {
		AssignmentID int    `json:"assignment_id"`
		Solution     string `json:"solution"`
		Status       string `json:"status"`
	}

	JobResponse struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
)

func (api *gradingApi) generateSolution(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}

	var data GenerateSolutionRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GenerateSolutionRequest")
	}

	if asn, err = api.s.deps.GradingSvc.GenerateSolution(ctx.Request().Context(), asn, data.Rubric); err != nil {
		return errors.Wrap(err, "generating solution")
	}
	return ctx.JSON(http.StatusOK, GenerateSolutionResponse{
		AssignmentID: asn.ID,
		Solution:     asn.IdealSolution,
		Status:       asn.SolutionStatus,
	})
}

func (api *gradingApi) bindOptions(ctx echo.Context) (grading.GradeOptions, error) {
	var opts grading.GradeOptions
	if err := ctx.Bind(&opts); err != nil {
		return opts, errors.Wrap(err, "binding to GradeOptions")
	}
	return opts, opts.Validate(api.s.deps.Validate)
}

func (api *gradingApi) grade(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	opts, err := api.bindOptions(ctx)
	if err != nil {
		return err
	}

	summary, err := api.s.deps.GradingSvc.Grade(ctx.Request().Context(), asn, opts)
	if err != nil {
		return errors.Wrap(err, "grading submissions")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *gradingApi) gradeAsync(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	opts, err := api.bindOptions(ctx)
	if err != nil {
		return err
	}

	job, err := api.s.deps.GradingSvc.Enqueue(asn, opts)
	if err != nil {
		return errors.Wrap(err, "enqueuing grading job")
	}
	return ctx.JSON(http.StatusAccepted, JobResponse{JobID: job.ID, Status: job.Status})
}

func (api *gradingApi) status(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	job, err := api.s.deps.GradingSvc.JobStatus(asn.ID, ctx.QueryParam("job_id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, job)
}

func (api *gradingApi) grades(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	grades, err := api.s.deps.GradingSvc.Grades(ctx.Request().Context(), asn)
	if err != nil {
		return errors.Wrap(err, "querying grades")
	}
	return ctx.JSON(http.StatusOK, grades)
}

func (api *gradingApi) submissions(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	results, err := api.s.deps.GradingSvc.Submissions(ctx.Request().Context(), asn)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *gradingApi) reports(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	reports, err := api.s.deps.GradingSvc.Reports(ctx.Request().Context(), asn)
	if err != nil {
		return errors.Wrap(err, "querying reports")
	}
	return ctx.JSON(http.StatusOK, reports)
}

func (api *gradingApi) average(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	avg, err := api.s.deps.GradingSvc.Average(ctx.Request().Context(), asn.ID)
	if err != nil {
		return errors.Wrap(err, "computing average")
	}
	return ctx.JSON(http.StatusOK, avg)
}

func (api *gradingApi) classAverage(ctx echo.Context) error {
	professorID := api.s.contextProfessorID(ctx)
	if professorID == 0 {
		if val := ctx.QueryParam("professor_id"); val != "" {
			id, err := strconv.Atoi(val)
			if err != nil {
				return ctx.JSON(http.StatusOK, grading.ClassAverage{})
			}
			professorID = id
		}
	}

	class, err := api.s.deps.GradingSvc.ClassAverage(ctx.Request().Context(), professorID)
	if err != nil {
		return errors.Wrap(err, "computing class average")
	}
	return ctx.JSON(http.StatusOK, class)
}

func (api *gradingApi) downloadCSV(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}

	res := ctx.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+grading.CSVFilename(asn.ID)+`"`)
	res.WriteHeader(http.StatusOK)
	if err = api.s.deps.GradingSvc.WriteCSV(ctx.Request().Context(), asn, res); err != nil {
		return errors.Wrap(err, "writing csv")
	}
	return nil
}
