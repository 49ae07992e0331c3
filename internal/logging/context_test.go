package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	// Initially empty.
	assert.Equal(t, "", SessionID(ctx))
	assert.Equal(t, "", PlanID(ctx))
	assert.Equal(t, "", StepID(ctx))
	assert.Equal(t, "", Identity(ctx))

	ctx = WithSessionID(ctx, "sess-123")
	ctx = WithPlanID(ctx, "plan-1")
	ctx = WithStepID(ctx, "step-1")
	ctx = WithIdentity(ctx, "+15551234567")

	// Round-trip.
	assert.Equal(t, "sess-123", SessionID(ctx))
	assert.Equal(t, "plan-1", PlanID(ctx))
	assert.Equal(t, "step-1", StepID(ctx))
	assert.Equal(t, "+15551234567", Identity(ctx))
}

func TestLogWith(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx := context.Background()
	ctx = WithSessionID(ctx, "sess-abc")
	ctx = WithPlanID(ctx, "plan-x")
	ctx = WithStepID(ctx, "step-x")

	enriched := LogWith(ctx, logger)
	enriched.Info("test message")

	output := buf.String()
	assert.Contains(t, output, "session_id=sess-abc")
	assert.Contains(t, output, "plan_id=plan-x")
	assert.Contains(t, output, "step_id=step-x")
	assert.Contains(t, output, "test message")
}

func TestLogWithMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	LogWith(context.Background(), logger).Info("bare")

	output := buf.String()
	assert.NotContains(t, output, "session_id")
	assert.NotContains(t, output, "plan_id")
	assert.NotContains(t, output, "step_id")
}

func TestCorrelationHandler_InjectsIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewCorrelationHandler(slog.NewTextHandler(&buf, nil)))

	ctx := WithSessionID(context.Background(), "sess-77")
	logger.InfoContext(ctx, "hello")

	assert.Contains(t, buf.String(), "session_id=sess-77")
}
