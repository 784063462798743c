package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/a-essam23/collab-dispatch/pkg/logging"
)

func TestParseLevel(t *testing.T) {
	lvl, err := logging.ParseLevel("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, err = logging.ParseLevel("")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)

	_, err = logging.ParseLevel("loud")
	assert.Error(t, err)
}

func TestConsoleHandlerWritesAttrsAndGroups(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	logger := slog.New(logging.NewConsoleHandler(&buf, slog.LevelInfo))

	logger.With(slog.String("component", "router")).
		WithGroup("req").
		Info("event handled", slog.String("event", "task:update"))
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "event handled")
	assert.Contains(t, out, "component=router")
	assert.Contains(t, out, "req.event=task:update")
	assert.NotContains(t, out, "hidden")
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
}
