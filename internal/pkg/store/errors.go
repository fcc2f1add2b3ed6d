package store

import (
	"errors"

	"github.com/ManuelReschke/CreditFox/internal/pkg/apperr"
)

// RecordError is AppError for lookups of one record kind: ErrNotFound reads
// "<record> not found" and every other failure carries message.
func RecordError(err error, record, message string) error {
	if errors.Is(err, ErrNotFound) {
		var coded *apperr.Error
		if !errors.As(err, &coded) {
			return apperr.Wrap(apperr.NotFound, record+" not found", err)
		}
	}
	return AppError(err, message)
}

// AppError maps store sentinels onto coded application errors. Errors that are
// already coded pass through; anything else becomes Internal.
func AppError(err error, message string) error {
	if err == nil {
		return nil
	}
	var coded *apperr.Error
	if errors.As(err, &coded) {
		return err
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.Wrap(apperr.NotFound, message, err)
	case errors.Is(err, ErrAlreadyApplied), errors.Is(err, ErrEventAlreadyApplied):
		return apperr.Wrap(apperr.AlreadyApplied, message, err)
	case errors.Is(err, ErrInsufficientCredits):
		return apperr.Wrap(apperr.InsufficientCredits, "Insufficient credits", err)
	case errors.Is(err, ErrDuplicateKey):
		return apperr.Wrap(apperr.Validation, message, err)
	case errors.Is(err, ErrUnavailable):
		return apperr.Wrap(apperr.StoreUnavailable, "store unavailable", err)
	default:
		return apperr.Wrap(apperr.Internal, message, err)
	}
}
