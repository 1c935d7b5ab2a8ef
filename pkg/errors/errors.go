// Package errors provides common, reusable error values and helpers.
package errors

import (
	"errors"
	"fmt"
)

// Failure taxonomy for the rate pipeline.
var (
	ErrTransport = errors.New("rate provider transport failure")
	ErrParse     = errors.New("malformed rate document")
	ErrCache     = errors.New("rate cache failure")

	// ErrRatesUnavailable is what callers see after any of the above is
	// caught and logged at the fetch seam.
	ErrRatesUnavailable = errors.New("exchange rates unavailable")

	ErrUnknownCurrency = errors.New("unknown currency code")
	ErrInvalidRange    = errors.New("invalid search range")
	ErrNoRates         = errors.New("snapshot has no conversion rates")
)

// Wrap adds context to an error while preserving the wrapped chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
