package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	obscontext "github.com/comfortstays/pgbilling/internal/observability/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-42")
	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from beds"))
	assert.Equal(t, "DELETE", operationFromSQL("  DELETE FROM prorated_charges WHERE reading_id = ?"))
	assert.Equal(t, "UPDATE", operationFromSQL("UPDATE beds SET notes = ? WHERE id = ?"))
	assert.Equal(t, "UNKNOWN", operationFromSQL("PRAGMA foreign_keys = ON"))
}

func TestBuildWritesServiceFields(t *testing.T) {
	var buf bytes.Buffer
	log, err := build(Config{Environment: "test", Version: "1.2.0", Level: "warn"}, zapcore.AddSync(&buf))
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("no previous reading", Period(2024, 5))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &entry))
	assert.Equal(t, "pgbilling", entry["service"])
	assert.Equal(t, "test", entry["env"])
	assert.Equal(t, "1.2.0", entry["version"])
	assert.Equal(t, "2024-06", entry["period"])
	assert.Equal(t, "warn", entry["level"])
}

func TestBuildRejectsUnknownLevel(t *testing.T) {
	_, err := build(Config{Level: "loud"}, zapcore.AddSync(&bytes.Buffer{}))
	assert.Error(t, err)
}

func TestPeriodWrapsDecember(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	zap.New(core).Info("reading created", Period(2023, 11), Period(2024, 0))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-01", entries[0].ContextMap()["period"])
	assert.Equal(t, "2023-12", entries[0].Context[0].String)
}
