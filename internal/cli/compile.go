package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/hunt/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	Statuses   int
	Puzzles    int
	Rules      int
	Properties int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile [def.cue]",
		Short: "Compile a hunt definition to JSON",
		Long: `Compile a CUE hunt definition and print the compiled form as JSON.

The compiled form is what the engine runs: the status table, puzzle set,
unlock rules, derived properties and hint settings.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := rootOpts.definitionPath(args)
			if err != nil {
				return rootOpts.formatter(cmd).Fail(err)
			}
			return runCompile(opts, path, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded, err := LoadDefinition(path)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Error())
		}
		return outputValidateError(formatter, ErrCodeLoad, err.Error())
	}
	if !loaded.Valid() {
		return outputValidationErrors(formatter, ValidationResult{
			Puzzles: len(loaded.Definition.Puzzles),
			Rules:   len(loaded.Definition.Rules),
			Errors:  loaded.Errors,
		})
	}

	def := loaded.Definition
	stats := CompilationStats{
		Statuses:   len(def.Statuses),
		Puzzles:    len(def.Puzzles),
		Rules:      len(def.Rules),
		Properties: len(def.Properties),
	}

	if opts.Output != "" {
		if err := writeDefinition(def, opts.Output); err != nil {
			return outputValidateError(formatter, ErrCodeLoad, fmt.Sprintf("writing output file: %v", err))
		}
		formatter.VerboseLog("Wrote %s", opts.Output)
	}

	if formatter.Format == "json" {
		return formatter.Success(def)
	}

	fmt.Fprintf(formatter.Writer, "%s Compiled %q: %d status(es), %d puzzle(s), %d rule(s), %d property(ies)\n",
		checkMark(), def.Name, stats.Statuses, stats.Puzzles, stats.Rules, stats.Properties)
	if opts.Output == "" {
		data, err := json.MarshalIndent(def, "", "  ")
		if err != nil {
			return formatter.Fail(err)
		}
		fmt.Fprintln(formatter.Writer, string(data))
	}
	return nil
}

// writeDefinition writes the compiled definition as indented JSON.
func writeDefinition(def *compiler.Definition, path string) error {
	data, err := json.MarshalIndent(def, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}
