package logger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormLogger_Trace(t *testing.T) {
	query := func() (string, int64) { return `SELECT * FROM "client_records" WHERE session_id = 'cs_1'`, 1 }

	t.Run("errors log through the context logger", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.NewNop(), gormlogger.Warn)
		ctx := WithContext(context.Background(), zap.New(core).With(zap.String("event_id", "evt_1")))

		l.Trace(ctx, time.Now(), query, errors.New("connection reset"))

		entry := findEntry(t, logs, "SQL error")
		assert.Equal(t, "evt_1", entry.ContextMap()["event_id"])
		assert.Equal(t, "gorm", entry.LoggerName)
	})

	t.Run("record not found is not an error", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn)

		l.Trace(context.Background(), time.Now(), query, gormlogger.ErrRecordNotFound)
		assert.Equal(t, 0, logs.Len())
	})

	t.Run("slow queries warn with the threshold", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn).WithSlowThreshold(time.Millisecond)

		l.Trace(context.Background(), time.Now().Add(-50*time.Millisecond), query, nil)

		entry := findEntry(t, logs, "Slow SQL")
		assert.Equal(t, time.Millisecond, entry.ContextMap()["threshold"])
	})

	t.Run("silent mode logs nothing", func(t *testing.T) {
		core, logs := observer.New(zapcore.DebugLevel)
		l := NewGormLogger(zap.New(core), gormlogger.Warn).LogMode(gormlogger.Silent)

		l.Trace(context.Background(), time.Now(), query, errors.New("boom"))
		require.Equal(t, 0, logs.Len())
	})
}

func TestMapGormLogLevel(t *testing.T) {
	assert.Equal(t, gormlogger.Info, MapGormLogLevel("debug"))
	assert.Equal(t, gormlogger.Warn, MapGormLogLevel("info"))
	assert.Equal(t, gormlogger.Error, MapGormLogLevel("error"))
	assert.Equal(t, gormlogger.Silent, MapGormLogLevel("off"))
}
