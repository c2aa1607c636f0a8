package errors

import (
	"errors"
	"log/slog"
)

// Log logs an error with logger, extracting fields if it's a
// StructuredError, or if it's one of the migration plan errors.
func Log(logger *slog.Logger, err error) {
	var serr *StructuredError
	if !errors.As(err, &serr) {
		serr = fromPlan(err)
	}
	if serr == nil {
		logger.Error(err.Error())
		return
	}

	logger.Error(serr.Message(), serr.attrs()...)
}
