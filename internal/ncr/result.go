package ncr

import (
	"errors"
	"fmt"

	"github.com/juggajay/siteproof-v2-sub005/internal/model"
)

// Code categorizes a rejected transition.
type Code string

const (
	// CodeInvalidTransition means the table has no edge between the two statuses.
	CodeInvalidTransition Code = "INVALID_TRANSITION"

	// CodeInsufficientRole means the edge exists but the actor's role may not take it.
	CodeInsufficientRole Code = "INSUFFICIENT_ROLE"

	// CodeMissingFields means one or more required fields were absent or blank.
	CodeMissingFields Code = "MISSING_FIELDS"
)

// Result is the outcome of ValidateTransition. A rejection is a normal answer, so it
// is returned as a value rather than an error.
type Result struct {
	Valid         bool
	Code          Code
	Message       string
	MissingFields []string
	RequiredRoles []model.Role
}

// Err converts a rejected result into a *TransitionError, or nil when valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &TransitionError{Result: r}
}

// TransitionError wraps a rejected Result for callers that propagate errors.
type TransitionError struct {
	Result Result
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Result.Code, e.Result.Message)
}

// AsTransitionError extracts a *TransitionError from err, following wraps.
func AsTransitionError(err error) (*TransitionError, bool) {
	var te *TransitionError
	if errors.As(err, &te) {
		return te, true
	}
	return nil, false
}
