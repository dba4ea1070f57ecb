package engine

import (
	"errors"
	"fmt"
	"strings"

	"deltaHedge/internal/curve"
)

// ValidationError names a simulation field that is missing or malformed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnknownPairError reports a pair id absent from the registry.
type UnknownPairError struct {
	Pair string
}

func (e *UnknownPairError) Error() string {
	return fmt.Sprintf("unknown pair: %s", e.Pair)
}

// InvalidTokenError reports an entry token that is not one of the pair's tokens.
type InvalidTokenError struct {
	Token   string
	Pair    string
	Allowed []string
}

func (e *InvalidTokenError) Error() string {
	return fmt.Sprintf("token %q is not part of pair %s (expected one of %s)", e.Token, e.Pair, strings.Join(e.Allowed, ", "))
}

// PriceUnavailableError reports a pair whose current price could not be obtained.
type PriceUnavailableError struct {
	Pair string
	Err  error
}

func (e *PriceUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("price unavailable for %s", e.Pair)
	}
	return fmt.Sprintf("price unavailable for %s: %v", e.Pair, e.Err)
}

func (e *PriceUnavailableError) Unwrap() error {
	return e.Err
}

// IsCallerError reports whether err was caused by the caller's input and
// should be surfaced verbatim.
func IsCallerError(err error) bool {
	var (
		validationErr *ValidationError
		unknownErr    *UnknownPairError
		tokenErr      *InvalidTokenError
		rangeErr      *curve.InvalidRangeError
		priceErr      *curve.InvalidPriceError
	)
	return errors.As(err, &validationErr) ||
		errors.As(err, &unknownErr) ||
		errors.As(err, &tokenErr) ||
		errors.As(err, &rangeErr) ||
		errors.As(err, &priceErr)
}
