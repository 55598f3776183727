package prep

import "errors"

var (
	// ErrSourceNotFound means the raw data reference resolved to nothing.
	ErrSourceNotFound = errors.New("source not found")

	// ErrSchemaMismatch means a required column is absent from the source.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrDatetimeParse means the datetime column could not be parsed with any
	// known layout.
	ErrDatetimeParse = errors.New("datetime parse failed")
)
