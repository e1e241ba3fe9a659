package auditlog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homeledger/pkg/requestcontext"
)

func TestLogAddsAuditFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	ctx := requestcontext.WithRequestID(context.Background(), "req-9")

	Log(ctx, logger, "work_verified", "work_record_id", "w1")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "audit", line["log_type"])
	assert.Equal(t, "work_verified", line["event"])
	assert.Equal(t, "req-9", line["request_id"])
	assert.Equal(t, "w1", line["work_record_id"])
}

func TestLogNilLogger(t *testing.T) {
	assert.NotPanics(t, func() { Log(context.Background(), nil, "x") })
}
