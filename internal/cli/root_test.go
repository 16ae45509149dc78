package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/hunt/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "hunt", cmd.Use)
	assert.Contains(t, cmd.Long, "HUNT_*")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{
		"validate", "compile", "test", "init", "start", "submit", "release",
		"set", "hint", "status", "history", "reset", "serve",
	}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"db", "def"} {
		f := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, "", f.DefValue)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"validate", "x.cue", "--format", "yaml"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestSettings_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("HUNT_DB_PATH", "/env/hunt.db")
	t.Setenv("HUNT_DEF", "/env/hunt.cue")
	t.Setenv("HUNT_LOG_LEVEL", "warn")

	opts := &RootOptions{}
	cfg, err := opts.settings()
	require.NoError(t, err)
	assert.Equal(t, "/env/hunt.db", cfg.DBPath)
	assert.Equal(t, "/env/hunt.cue", cfg.Definition)
	assert.Equal(t, "warn", cfg.LogLevel)

	opts = &RootOptions{DB: "/flag/hunt.db", Def: "/flag/hunt.cue", Verbose: true}
	cfg, err = opts.settings()
	require.NoError(t, err)
	assert.Equal(t, "/flag/hunt.db", cfg.DBPath)
	assert.Equal(t, "/flag/hunt.cue", cfg.Definition)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestSettings_DBFlagTargetsPostgresURL(t *testing.T) {
	t.Setenv("HUNT_DB_DRIVER", config.DriverPostgres)
	t.Setenv("HUNT_DATABASE_URL", "postgres://env/hunt")

	cfg, err := (&RootOptions{DB: "postgres://flag/hunt"}).settings()
	require.NoError(t, err)
	assert.Equal(t, "postgres://flag/hunt", cfg.DatabaseURL)
}

func TestSettings_InvalidEnv(t *testing.T) {
	t.Setenv("HUNT_DB_DRIVER", "mongo")

	_, err := (&RootOptions{}).settings()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeConfig)
}

func TestDefinitionPath(t *testing.T) {
	t.Setenv("HUNT_DEF", "/env/hunt.cue")

	path, err := (&RootOptions{}).definitionPath([]string{"arg.cue"})
	require.NoError(t, err)
	assert.Equal(t, "arg.cue", path)

	path, err = (&RootOptions{Def: "flag.cue"}).definitionPath(nil)
	require.NoError(t, err)
	assert.Equal(t, "flag.cue", path)

	path, err = (&RootOptions{}).definitionPath(nil)
	require.NoError(t, err)
	assert.Equal(t, "/env/hunt.cue", path)
}
