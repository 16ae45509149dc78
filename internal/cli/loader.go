package cli

import (
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"

	"github.com/roach88/hunt/internal/compiler"
)

// LoadResult is a compiled hunt definition together with its static checks.
type LoadResult struct {
	Definition *compiler.Definition
	Errors     []compiler.ValidationError // schema violations; the hunt cannot run
	Warnings   []compiler.CycleWarning    // dependency cycles; the hunt can run
}

// Valid reports whether the definition passed schema validation.
func (r *LoadResult) Valid() bool {
	return len(r.Errors) == 0
}

// LoadError is a failure to read or compile a definition file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadDefinition compiles the CUE hunt definition at path and runs the
// schema validation and cycle analysis on it. Cycle analysis only runs
// on a valid definition.
func LoadDefinition(path string) (*LoadResult, error) {
	if path == "" {
		return nil, &LoadError{Code: ErrCodeUsage, Message: "no hunt definition given (use --def or HUNT_DEF)"}
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeLoad, Message: fmt.Sprintf("hunt definition not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeLoad, Message: fmt.Sprintf("error accessing hunt definition: %v", err)}
	}
	if info.IsDir() {
		return nil, &LoadError{Code: ErrCodeLoad, Message: fmt.Sprintf("not a file: %s", path)}
	}

	def, err := compiler.CompileFile(path)
	if err != nil {
		return nil, convertCompileError(err)
	}

	result := &LoadResult{
		Definition: def,
		Errors:     compiler.Validate(def),
	}
	if result.Valid() {
		result.Warnings = compiler.AnalyzeCycles(def)
	}
	return result, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    ErrCodeLoad,
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeLoad, Message: err.Error()}
}
