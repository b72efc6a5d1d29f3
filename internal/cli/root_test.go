package cli

import (
	"bytes"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapprep/internal/cli/config"
	"github.com/leapstack-labs/leapprep/internal/logging"
)

// countCloses replaces the command logger with one whose cleanup is counted.
func countCloses(t *testing.T) *int {
	t.Helper()
	closes := 0
	orig := newLogger
	newLogger = func(w io.Writer, opts logging.Options) (*slog.Logger, func(), error) {
		logger, closeFn, err := orig(w, opts)
		if err != nil {
			return nil, nil, err
		}
		return logger, func() { closes++; closeFn() }, nil
	}
	t.Cleanup(func() { newLogger = orig })
	return &closes
}

func runRoot(t *testing.T, args ...string) (func(), error) {
	t.Helper()
	t.Chdir(t.TempDir())
	config.ResetConfig()
	t.Cleanup(config.ResetConfig)

	cmd, closeLogger := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	return closeLogger, cmd.Execute()
}

func TestRootCmd_ClosesLoggerAfterFailure(t *testing.T) {
	closes := countCloses(t)

	closeLogger, err := runRoot(t, "run", "--preview", "-1")
	require.ErrorContains(t, err, "--preview")
	assert.Equal(t, 0, *closes, "post-run hooks are skipped on failure")

	closeLogger()
	assert.Equal(t, 1, *closes)
	closeLogger()
	assert.Equal(t, 1, *closes, "closing twice is a no-op")
}

func TestRootCmd_ClosesLoggerAfterSuccess(t *testing.T) {
	closes := countCloses(t)

	closeLogger, err := runRoot(t, "steps")
	require.NoError(t, err)
	assert.Equal(t, 1, *closes)

	closeLogger()
	assert.Equal(t, 1, *closes)
}

func TestRootCmd_SkipsLoggerForVersion(t *testing.T) {
	closes := countCloses(t)

	closeLogger, err := runRoot(t, "version")
	require.NoError(t, err)
	closeLogger()
	assert.Equal(t, 0, *closes)
}
