package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/hunt/internal/compiler"
	"github.com/roach88/hunt/internal/config"
	"github.com/roach88/hunt/internal/engine"
	"github.com/roach88/hunt/internal/hunt"
)

// session is one command's view of a hunt: the compiled definition, an
// engine over the configured backend and the output formatter.
type session struct {
	cfg       config.Config
	plugin    *compiler.Plugin
	engine    *engine.Engine
	formatter *OutputFormatter
	logger    *slog.Logger
}

// openSession resolves configuration, compiles the definition and opens
// the engine. Errors are already reported through the formatter.
func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	formatter := opts.formatter(cmd)

	cfg, err := opts.settings()
	if err != nil {
		return nil, formatter.Fail(err)
	}
	logger := newLogger(cmd.ErrOrStderr(), cfg)

	loaded, err := LoadDefinition(cfg.Definition)
	if err != nil {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			return nil, outputValidateError(formatter, loadErr.Code, loadErr.Error())
		}
		return nil, outputValidateError(formatter, ErrCodeLoad, err.Error())
	}
	if !loaded.Valid() {
		return nil, outputValidationErrors(formatter, ValidationResult{
			Puzzles: len(loaded.Definition.Puzzles),
			Rules:   len(loaded.Definition.Rules),
			Errors:  loaded.Errors,
		})
	}

	plugin, err := compiler.NewPlugin(loaded.Definition, compiler.WithLogger(logger))
	if err != nil {
		return nil, formatter.Fail(err)
	}

	backend, err := cfg.OpenBackend(ctx)
	if err != nil {
		logger.Error("open backend", "driver", cfg.DBDriver, "error", err)
		return nil, formatter.Fail(err)
	}

	eng, err := engine.New(engine.Config{
		MaxPasses: cfg.MaxPasses,
		Logger:    logger,
	}, backend, plugin)
	if err != nil {
		_ = backend.Close()
		return nil, formatter.Fail(err)
	}

	logger.Debug("session open",
		"driver", cfg.DBDriver,
		"definition", cfg.Definition,
		"run", cfg.Run,
	)

	return &session{
		cfg:       cfg,
		plugin:    plugin,
		engine:    eng,
		formatter: formatter,
		logger:    logger,
	}, nil
}

// Close closes the engine's backend.
func (s *session) Close() {
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("close backend", "error", err)
	}
}

// run returns the run id from flags, falling back to HUNT_RUN.
func (s *session) run(flag string) hunt.RunID {
	if flag != "" {
		return hunt.RunID(flag)
	}
	return hunt.RunID(s.cfg.Run)
}

// fail logs err and reports it through the formatter.
func (s *session) fail(op string, err error) error {
	if !hunt.IsNotFound(err) {
		s.logger.Error(op+" failed", "error", err)
	}
	return s.formatter.Fail(err)
}

// withSession opens a session, runs fn and closes the session.
func withSession(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts, cmd)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// requireFlag reports a missing required flag as a usage error.
func requireFlag(f *OutputFormatter, name, value string) error {
	if value != "" {
		return nil
	}
	msg := fmt.Sprintf("--%s is required", name)
	_ = f.Error(ErrCodeUsage, msg, nil)
	return NewExitError(ExitCommandError, msg)
}
