package serving

import (
	"errors"
	"strings"
)

var (
	// ErrModelNotLoaded means no model for the name is in the serving cache.
	ErrModelNotLoaded = errors.New("model not loaded")

	// ErrBadInput means the request shape does not satisfy the model
	// family's input contract.
	ErrBadInput = errors.New("bad prediction input")

	// ErrConversionFailed means the input could not be converted to the
	// tabular form the model consumes.
	ErrConversionFailed = errors.New("input conversion failed")

	// ErrPredictionUnavailable means a loaded model failed internally while
	// producing output. Nothing partial is returned.
	ErrPredictionUnavailable = errors.New("prediction unavailable")
)

// MissingFeaturesError reports exactly which recorded feature columns the
// request lacks.
type MissingFeaturesError struct {
	Missing []string
}

func (e *MissingFeaturesError) Error() string {
	return "missing feature columns: " + strings.Join(e.Missing, ", ")
}
