package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContextLogsBaseFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	rc := NewRequestContext(logger, "message", "U1")
	require.NotEmpty(t, rc.RequestID)
	rc.Error("dispatch failed", errors.New("boom"), slog.String(LogFieldCommand, "add"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, rc.RequestID, line[LogFieldRequestID])
	assert.Equal(t, "U1", line[LogFieldOwner])
	assert.Equal(t, "message", line[LogFieldEventType])
	assert.Equal(t, "add", line[LogFieldCommand])
	assert.Equal(t, "boom", line["error"])
}

func TestRequestContextRoundTrip(t *testing.T) {
	rc := NewRequestContextWithID(nil, "req-1", "message", "U1")
	ctx := WithRequestContext(context.Background(), rc)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "req-1", got.RequestID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, 100.0, m.Snapshot().SuccessRate())

	m.Record("add", 10*time.Millisecond, false)
	m.Record("add", 30*time.Millisecond, true)
	m.Record("query", 5*time.Millisecond, false)

	snap := m.Snapshot()
	assert.Equal(t, int64(3), snap.RequestTotal)
	assert.Equal(t, int64(1), snap.RequestFailed)
	require.Contains(t, snap.Commands, "add")
	assert.Equal(t, int64(2), snap.Commands["add"].Count)
	assert.Equal(t, int64(1), snap.Commands["add"].ErrorCount)
	assert.Equal(t, int64(20), snap.Commands["add"].AverageDurationMs)
	assert.InDelta(t, 66.67, snap.SuccessRate(), 0.01)
}
