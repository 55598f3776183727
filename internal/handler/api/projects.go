package api

import (
	"loadcast/internal/orchestrator"
	"loadcast/internal/store"
	xhttp "loadcast/pkg/http"
	xlogger "loadcast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ProjectsHandler exposes project CRUD and the pipeline lifecycle over HTTP.
type ProjectsHandler struct {
	logger *xlogger.Logger
	store  *store.Store
	orch   *orchestrator.Orchestrator
}

func NewProjectsHandler(logger *xlogger.Logger, st *store.Store, orch *orchestrator.Orchestrator) *ProjectsHandler {
	return &ProjectsHandler{logger: logger, store: st, orch: orch}
}

func (h *ProjectsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/projects")
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/data", h.SubmitData)
	g.POST("/:id/run", h.StartRun)
	g.GET("/:id/status", h.GetStatus)

	e.GET("/healthz", h.Healthz)
}

func (h *ProjectsHandler) Create(c echo.Context) error {
	req := &CreateProjectRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	p, err := h.store.CreateProject(c.Request().Context(), req.Name)
	if err != nil {
		h.logger.Error("create project failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.CreatedResponse(c, p)
}

func (h *ProjectsHandler) List(c echo.Context) error {
	projects, err := h.store.ListProjects(c.Request().Context())
	if err != nil {
		h.logger.Error("list projects failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.ListResponse(c, projects, int64(len(projects)))
}

func (h *ProjectsHandler) Get(c echo.Context) error {
	p, err := h.store.GetProject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, p)
}

func (h *ProjectsHandler) Delete(c echo.Context) error {
	if err := h.store.DeleteProject(c.Request().Context(), c.Param("id")); err != nil {
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.NoContentResponse(c)
}

func (h *ProjectsHandler) SubmitData(c echo.Context) error {
	req := &SubmitDataRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	err := h.orch.SubmitData(c.Request().Context(), c.Param("id"), req.Source, req.DatetimeCol, req.ValueCol)
	if err != nil {
		h.logger.Error("submit data failed",
			xlogger.String("project_id", c.Param("id")), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": string(store.StatusDataUploaded)})
}

// StartRun kicks off the pipeline and returns 202 immediately; progress is
// observable through the status endpoint.
func (h *ProjectsHandler) StartRun(c echo.Context) error {
	req := &StartRunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	err := h.orch.StartRun(c.Request().Context(), c.Param("id"), req.Horizon, req.Granularity, req.TargetUnit)
	if err != nil {
		h.logger.Error("start run failed",
			xlogger.String("project_id", c.Param("id")), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.AcceptedResponse(c, map[string]string{"status": string(store.StatusProcessing)})
}

func (h *ProjectsHandler) GetStatus(c echo.Context) error {
	info, err := h.orch.GetStatus(c.Request().Context(), c.Param("id"))
	if err != nil {
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, info)
}

func (h *ProjectsHandler) Healthz(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}
