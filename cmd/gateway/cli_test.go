package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestPoliciesCommand_PrintsEffectiveTable(t *testing.T) {
	t.Setenv("ACTIONS_POST_MAX_REQUESTS", "9")

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"policies", "--env-file", ""})

	require.NoError(t, cmd.Execute())

	s := out.String()
	assert.Contains(t, s, "ACTION")
	assert.Regexp(t, `post\s+1m0s\s+9\s+Too many requests\. Please wait before posting again\.`, s)
	assert.Regexp(t, `server\s+1h0m0s\s+3\s+`, s)
}

func TestServeCommand_RequiresUpstream(t *testing.T) {
	t.Setenv("UPSTREAM_URL", "")

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"serve", "--env-file", ""})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPSTREAM_URL")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLogLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLogLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLogLevel(" error "))
	assert.Equal(t, zapcore.InfoLevel, parseLogLevel("verbose"))
}

func TestNewLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := newLogger("debug", format)
		require.NoError(t, err)
		assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	}
}
