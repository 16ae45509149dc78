package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/roach88/hunt/internal/hunt"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Scenario or validation failure, internal fault
	ExitCommandError = 2 // Bad input: unknown entity, rejected transition, invalid paths
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeNotFound   = "E_NOT_FOUND"
	ErrCodeRejected   = "E_REJECTED"
	ErrCodeUsage      = "E_USAGE"
	ErrCodeConfig     = "E_CONFIG"
	ErrCodeLoad       = "E_LOAD"
	ErrCodeValidation = "E_VALIDATION"
	ErrCodeInternal   = "E_INTERNAL"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err and returns the ExitError the command should return.
//
// Unknown entities map to E_NOT_FOUND and exit 2. ExitErrors pass through
// after being reported with their own message. Anything else is an internal
// fault: the caller sees an opaque message, the detail goes to the log.
func (f *OutputFormatter) Fail(err error) error {
	var exitErr *ExitError
	switch {
	case errors.As(err, &exitErr):
		code := ErrCodeUsage
		if exitErr.Code == ExitFailure {
			code = ErrCodeInternal
		}
		_ = f.Error(code, exitErr.Error(), nil)
		return exitErr
	case hunt.IsNotFound(err):
		_ = f.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeNotFound, err)
	default:
		_ = f.Error(ErrCodeInternal, "internal error", nil)
		f.VerboseLog("cause: %v", err)
		return NewExitError(ExitFailure, "internal error")
	}
}

// Rejected reports a transition the status policy refused.
func (f *OutputFormatter) Rejected(message string) error {
	_ = f.Error(ErrCodeRejected, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", ErrCodeRejected, message))
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// statusColors maps the conventional status names to terminal colours.
// Hunts with their own vocabulary print uncoloured.
var statusColors = map[hunt.Status]color.Attribute{
	"INVISIBLE": color.FgHiBlack,
	"VISIBLE":   color.FgCyan,
	"UNLOCKED":  color.FgYellow,
	"SOLVED":    color.FgGreen,
}

// colorStatus renders a status for text output. fatih/color disables
// itself when stdout is not a terminal or NO_COLOR is set.
func colorStatus(s hunt.Status) string {
	attr, ok := statusColors[s]
	if !ok {
		return string(s)
	}
	return color.New(attr).Sprint(string(s))
}

func checkMark() string { return color.New(color.FgGreen).Sprint("✓") }

func crossMark() string { return color.New(color.FgRed).Sprint("✗") }
