package logger

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func encodeOne(t *testing.T, entry zapcore.Entry, fields ...zapcore.Field) string {
	t.Helper()
	enc := newMinimalEncoder()
	buf, err := enc.EncodeEntry(entry, fields)
	require.NoError(t, err)
	defer buf.Free()
	return buf.String()
}

func TestMinimalEncoderBasicLine(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	out := encodeOne(t, zapcore.Entry{
		Level:   zapcore.InfoLevel,
		Time:    ts,
		Message: "Sync complete",
	})

	assert.Contains(t, out, "09:26:53")
	assert.Contains(t, out, "Sync complete")
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestMinimalEncoderFields(t *testing.T) {
	out := encodeOne(t, zapcore.Entry{Level: zapcore.InfoLevel, Time: time.Now(), Message: "scan"},
		zap.String("account", "alice"),
		zap.Int64("cursor", 1250),
		zap.Bool("backfill", true),
	)

	assert.Contains(t, out, "account")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "cursor")
	assert.Contains(t, out, "1250")
	assert.Contains(t, out, "backfill")
	assert.Contains(t, out, "true")
}

func TestMinimalEncoderQuotesSpacedValues(t *testing.T) {
	out := encodeOne(t, zapcore.Entry{Level: zapcore.WarnLevel, Time: time.Now(), Message: "skip"},
		zap.String("reason", "malformed group payload"),
	)
	assert.Contains(t, out, `"malformed group payload"`)
}

func TestMinimalEncoderDuration(t *testing.T) {
	out := encodeOne(t, zapcore.Entry{Level: zapcore.DebugLevel, Time: time.Now(), Message: "page"},
		zap.Duration("elapsed", 1500*time.Millisecond),
	)
	assert.Contains(t, out, "1.5s")
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(0))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(1))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(2))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
}
