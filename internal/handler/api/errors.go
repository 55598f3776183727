package api

import (
	"errors"

	"loadcast/internal/orchestrator"
	"loadcast/internal/prep"
	"loadcast/internal/registry"
	"loadcast/internal/serving"
	"loadcast/internal/store"
	xhttp "loadcast/pkg/http"
)

// mapDomainError translates package-level sentinels into the HTTP error
// envelope. Anything unrecognized becomes a 500 without leaking internals.
func mapDomainError(err error) *xhttp.AppError {
	var missing *serving.MissingFeaturesError
	if errors.As(err, &missing) {
		return xhttp.BadRequestError("prediction input is missing required feature columns").
			WithParam("missing", missing.Missing)
	}

	switch {
	case errors.Is(err, store.ErrProjectNotFound):
		return xhttp.NotFoundError("project not found")
	case errors.Is(err, registry.ErrModelNotFound):
		return xhttp.NotFoundError("model not found")
	case errors.Is(err, serving.ErrModelNotLoaded):
		return xhttp.NotFoundError("model not loaded")
	case errors.Is(err, orchestrator.ErrConflict):
		return xhttp.ConflictError("a run is already in progress for this project")
	case errors.Is(err, orchestrator.ErrPreconditionFailed):
		return xhttp.PreconditionError(err.Error())
	case errors.Is(err, prep.ErrSourceNotFound):
		return xhttp.BadRequestError("data source could not be resolved")
	case errors.Is(err, prep.ErrSchemaMismatch),
		errors.Is(err, prep.ErrDatetimeParse),
		errors.Is(err, serving.ErrBadInput),
		errors.Is(err, serving.ErrConversionFailed):
		return xhttp.BadRequestError(err.Error())
	case errors.Is(err, serving.ErrPredictionUnavailable):
		return xhttp.UnavailableError("prediction unavailable")
	}
	return xhttp.InternalError("internal error").WithError(err)
}
