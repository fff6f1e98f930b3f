package echoapi

import (
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/grader/core"
	"github.com/trezcool/grader/core/assignment"
	"github.com/trezcool/grader/core/grading"
)

var errBadMaxPoints = errors.New("must be a positive integer")

type assignmentApi struct {
	s *Server
}

func registerAssignmentAPI(g *echo.Group, s *Server) {
	api := assignmentApi{s: s}
	limit := uploadLimit(s.deps.Conf.Uploads.MaxUploadSize)

	g.POST("/upload-question-file", api.createWithQuestionFile, limit)

	ag := g.Group("/assignments")
	ag.GET("", api.query)
	ag.POST("", api.create)

	// detail endpoints
	dg := ag.Group("/:id", s.assignmentMiddleware("id"))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/upload", api.upload, limit)
	dg.POST("/solution/verify", api.verifySolution)
}

// uploadLimit rejects upload bodies larger than size bytes with a 413. A size of zero disables the check.
func uploadLimit(size int64) echo.MiddlewareFunc {
	if size <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return middleware.BodyLimit(strconv.FormatInt(size, 10) + "B")
}

// assignmentMiddleware loads the assignment identified by the `param` path parameter into the context.
func (s *Server) assignmentMiddleware(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			id, err := paramID(ctx, param)
			if err != nil {
				return err
			}
			asn, err := s.deps.AssignmentSvc.GetByID(ctx.Request().Context(), id)
			if err != nil {
				return errors.Wrap(err, "finding assignment by ID")
			}
			if err = s.checkOwner(ctx, asn.ProfessorID); err != nil {
				return err
			}
			ctx.Set(objectContextKey, asn)
			return next(ctx)
		}
	}
}

func contextAssignment(ctx echo.Context) (assignment.Assignment, error) {
	asn, ok := ctx.Get(objectContextKey).(assignment.Assignment)
	if !ok {
		return assignment.Assignment{}, errors.Wrap(errObjNotFoundInCtx, "retrieving assignment from context")
	}
	return asn, nil
}

func (api *assignmentApi) annotated(ctx echo.Context, asn assignment.Assignment) (assignment.Assignment, error) {
	asns, err := api.s.deps.GradingSvc.Annotate(ctx.Request().Context(), asn)
	if err != nil {
		return assignment.Assignment{}, errors.Wrap(err, "annotating assignment")
	}
	return asns[0], nil
}

func (api *assignmentApi) query(ctx echo.Context) error {
	filter := new(assignment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []assignment.Assignment{})
	}
	filter.Clean()
	if id := api.s.contextProfessorID(ctx); id != 0 {
		filter.ProfessorID = id
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	rctx := ctx.Request().Context()
	asns, err := api.s.deps.AssignmentSvc.Query(rctx, filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying assignments")
	}
	if asns, err = api.s.deps.GradingSvc.Annotate(rctx, asns...); err != nil {
		return errors.Wrap(err, "annotating assignments")
	}
	if asns == nil {
		asns = []assignment.Assignment{}
	}
	return ctx.JSON(http.StatusOK, asns)
}

func (api *assignmentApi) create(ctx echo.Context) error {
	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := api.s.checkOwner(ctx, data.ProfessorID); err != nil {
		return err
	}
	if err := data.Validate(api.s.deps.Validate); err != nil {
		return err
	}

	asn, err := api.s.deps.AssignmentSvc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, asn)
}

// formFile opens the multipart `file` field. A missing file is a validation error.
func formFile(ctx echo.Context) (string, multipart.File, error) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return "", nil, core.NewValidationError(assignment.ErrEmptyUpload, core.FieldError{Field: "file", Error: assignment.ErrEmptyUpload.Error()})
		}
		return "", nil, errors.Wrap(err, "reading multipart file")
	}
	f, err := fh.Open()
	if err != nil {
		return "", nil, errors.Wrap(err, "opening multipart file")
	}
	return fh.Filename, f, nil
}

func (api *assignmentApi) createWithQuestionFile(ctx echo.Context) error {
	var data assignment.NewAssignment
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAssignment")
	}
	if err := api.s.checkOwner(ctx, data.ProfessorID); err != nil {
		return err
	}
	if err := data.Validate(api.s.deps.Validate); err != nil {
		return err
	}

	filename, file, err := formFile(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	asn, err := api.s.deps.AssignmentSvc.CreateWithQuestionFile(ctx.Request().Context(), data, filename, file)
	if err != nil {
		return errors.Wrap(err, "creating assignment")
	}
	return ctx.JSON(http.StatusCreated, asn)
}

func (api *assignmentApi) retrieve(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	if asn, err = api.annotated(ctx, asn); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, asn)
}

func (api *assignmentApi) update(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}

	var data assignment.UpdateAssignment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateAssignment")
	}
	if err = data.Validate(api.s.deps.Validate); err != nil {
		return err
	}

	if asn, err = api.s.deps.AssignmentSvc.Update(ctx.Request().Context(), asn, data); err != nil {
		return errors.Wrap(err, "updating assignment")
	}
	if asn, err = api.annotated(ctx, asn); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, asn)
}

func (api *assignmentApi) destroy(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}
	if err = api.s.deps.AssignmentSvc.Delete(ctx.Request().Context(), asn); err != nil {
		return errors.Wrap(err, "deleting assignment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assignmentApi) verifySolution(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}

	var data assignment.VerifySolution
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifySolution")
	}
	if err = data.Validate(api.s.deps.Validate); err != nil {
		return err
	}

	if asn, err = api.s.deps.AssignmentSvc.VerifySolution(ctx.Request().Context(), asn, data); err != nil {
		return errors.Wrap(err, "verifying solution")
	}
	return ctx.JSON(http.StatusOK, asn)
}

type UploadResponse struct {
	Message       string           `json:"message"`
	ZipPath       string           `json:"zip_path"`
	ExtractedPath string           `json:"extracted_path"`
	Grading       *grading.Summary `json:"grading"`
}

// formGradeOptions reads the optional `rubric` and `max_points` form fields.
func (api *assignmentApi) formGradeOptions(ctx echo.Context) (grading.GradeOptions, error) {
	var opts grading.GradeOptions
	if rubric := ctx.FormValue("rubric"); rubric != "" {
		opts.Rubric = &rubric
	}
	if val := ctx.FormValue("max_points"); val != "" {
		maxPoints, err := strconv.Atoi(val)
		if err != nil {
			return opts, core.NewValidationError(errBadMaxPoints, core.FieldError{Field: "max_points", Error: errBadMaxPoints.Error()})
		}
		opts.MaxPoints = &maxPoints
	}
	return opts, opts.Validate(api.s.deps.Validate)
}

// upload stores and extracts the submissions archive, then grades it.
func (api *assignmentApi) upload(ctx echo.Context) error {
	asn, err := contextAssignment(ctx)
	if err != nil {
		return err
	}

	filename, file, err := formFile(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	opts, err := api.formGradeOptions(ctx)
	if err != nil {
		return err
	}

	release, err := api.s.deps.GradingSvc.Reserve(asn.ID)
	if err != nil {
		return err
	}
	defer release()

	rctx := ctx.Request().Context()
	if asn, err = api.s.deps.AssignmentSvc.SetSubmissions(rctx, asn, filename, file); err != nil {
		return errors.Wrap(err, "saving submissions")
	}

	resp := UploadResponse{
		Message:       "File uploaded and graded successfully",
		ZipPath:       asn.ZipFilePath,
		ExtractedPath: asn.ExtractedFolderPath,
	}
	summary, err := api.s.deps.GradingSvc.GradeReserved(rctx, asn, opts)
	if err != nil {
		var vErr *core.ValidationError
		if !errors.As(err, &vErr) {
			return errors.Wrap(err, "grading submissions")
		}
		resp.Message = "File uploaded, " + vErr.Error()
	} else {
		resp.Grading = &summary
	}
	return ctx.JSON(http.StatusOK, resp)
}
