package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while the engine applies
// events or propagates derived state.
//
// Runtime errors include:
//   - Non-convergence: propagation exceeded its pass cap
//   - Calculator failure: the unlock calculator returned an error
//   - Invalid plugin: the plugin could not be wired into the engine
//
// RuntimeError includes structured fields for diagnostics.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Team identifies the affected team, if any.
	Team string

	// Details contains additional context.
	Details map[string]string

	// Err is the underlying cause, if any.
	Err error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeNotConverged indicates propagation hit its pass cap.
	ErrCodeNotConverged RuntimeErrorCode = "NOT_CONVERGED"

	// ErrCodeCalculatorFailed indicates the calculator returned an error.
	ErrCodeCalculatorFailed RuntimeErrorCode = "CALCULATOR_FAILED"

	// ErrCodeInvalidPlugin indicates the plugin could not be wired.
	ErrCodeInvalidPlugin RuntimeErrorCode = "INVALID_PLUGIN"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Team != "" {
		msg += fmt.Sprintf(" (team=%s)", e.Team)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NotConvergedError is returned when propagation for a team does not reach
// a fixed point within the pass cap. It signals a defect in the hunt's rule
// set (a cycle), never a routine condition.
type NotConvergedError struct {
	Team   string // The team whose propagation was aborted
	Passes int    // Passes attempted, including the one that failed the check
	Limit  int    // Maximum allowed passes
}

// Error implements the error interface.
func (e *NotConvergedError) Error() string {
	return fmt.Sprintf("propagation for team %s did not converge: %d passes > %d limit",
		e.Team, e.Passes, e.Limit)
}

// RuntimeError returns the error code for matching.
func (e *NotConvergedError) RuntimeError() string {
	return string(ErrCodeNotConverged)
}

// IsNotConverged returns true if err is a non-convergence error.
// Matches both NotConvergedError and RuntimeError with ErrCodeNotConverged.
// Uses errors.As to handle wrapped errors.
func IsNotConverged(err error) bool {
	var nc *NotConvergedError
	if errors.As(err, &nc) {
		return true
	}
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeNotConverged
	}
	return false
}

// IsCalculatorError returns true if err came from the unlock calculator.
func IsCalculatorError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeCalculatorFailed
	}
	return false
}

func newCalculatorError(team string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeCalculatorFailed,
		Message: "unlock calculator failed",
		Team:    team,
		Err:     err,
	}
}

func newPluginError(message string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidPlugin,
		Message: message,
		Err:     err,
	}
}
