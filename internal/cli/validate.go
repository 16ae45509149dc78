package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/hunt/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Puzzles  int                        `json:"puzzles"`
	Rules    int                        `json:"rules"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [def.cue]",
		Short: "Validate a hunt definition",
		Long: `Validate a CUE hunt definition without touching a database.

Checks the status table, puzzle set, rules and properties, then reports
dependency cycles between puzzle rules as warnings. The definition path
defaults to --def / HUNT_DEF.

Exit codes:
  0 - Definition valid (warnings allowed)
  1 - Validation errors
  2 - Definition could not be read or compiled`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := rootOpts.definitionPath(args)
			if err != nil {
				return rootOpts.formatter(cmd).Fail(err)
			}
			return runValidate(rootOpts, path, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	formatter.VerboseLog("Loading hunt definition %s", path)
	loaded, err := LoadDefinition(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Error())
		}
		return outputValidateError(formatter, ErrCodeLoad, err.Error())
	}

	result := ValidationResult{
		Valid:    loaded.Valid(),
		Puzzles:  len(loaded.Definition.Puzzles),
		Rules:    len(loaded.Definition.Rules),
		Errors:   loaded.Errors,
		Warnings: loaded.Warnings,
	}

	if !result.Valid {
		return outputValidationErrors(formatter, result)
	}
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "%s Hunt definition valid (%d puzzle(s), %d rule(s))\n",
		checkMark(), result.Puzzles, result.Rules)
	for _, w := range result.Warnings {
		fmt.Fprintf(formatter.Writer, "  %s: %s [%s]\n", w.Level, w.Message, strings.Join(w.Path, " → "))
	}
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, message)
}

// outputValidationErrors outputs every validation error.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeValidation,
				Message: result.Errors[0].Error(),
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintf(formatter.Writer, "%s Validation failed\n\n", crossMark())
	for _, e := range result.Errors {
		fmt.Fprintf(formatter.Writer, "  %s %s: %s\n", e.Code, e.Field, e.Message)
	}
	return exitErr
}
