package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestGetLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, getLogLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, getLogLevel("warning"))
	assert.Equal(t, slog.LevelError, getLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, getLogLevel(""))
}

func TestLogTransition_WritesJSONInReleaseMode(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	defer gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info").WithComponent("queue")
	l.LogTransition(context.Background(), "queue_entry", "e-1", "ready", "awaiting_confirmation")

	out := buf.String()
	assert.Contains(t, out, `"msg":"State Transition"`)
	assert.Contains(t, out, `"component":"queue"`)
	assert.Contains(t, out, `"to":"awaiting_confirmation"`)
}

func TestLogRaceOutcome_HiddenAboveDebug(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "info")
	l.LogRaceOutcome(context.Background(), "expire", "e-1")
	assert.Empty(t, buf.String())

	l.WithError(errors.New("x")).Info("visible")
	assert.Contains(t, buf.String(), "visible")
}
