package api

import (
	"loadcast/internal/serving"
	xhttp "loadcast/pkg/http"
	xlogger "loadcast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ModelsHandler exposes the serving dispatcher over HTTP.
type ModelsHandler struct {
	logger     *xlogger.Logger
	dispatcher *serving.Dispatcher
}

func NewModelsHandler(logger *xlogger.Logger, d *serving.Dispatcher) *ModelsHandler {
	return &ModelsHandler{logger: logger, dispatcher: d}
}

func (h *ModelsHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/models")
	g.POST("/:name/predict", h.Predict)
	g.GET("/:name/info", h.Info)
	g.GET("", h.Loaded)
}

func (h *ModelsHandler) Predict(c echo.Context) error {
	req := &PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	points, err := h.dispatcher.Predict(c.Request().Context(), c.Param("name"), req)
	if err != nil {
		h.logger.Error("predict failed",
			xlogger.String("model", c.Param("name")), xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, points)
}

func (h *ModelsHandler) Info(c echo.Context) error {
	info, err := h.dispatcher.Info(c.Param("name"))
	if err != nil {
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, info)
}

// Loaded lists the models currently held in the serving cache.
func (h *ModelsHandler) Loaded(c echo.Context) error {
	names := h.dispatcher.Loaded()
	return xhttp.ListResponse(c, names, int64(len(names)))
}
