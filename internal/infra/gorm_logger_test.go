package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestGormZapLoggerTrace(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := newGormLogger(zap.New(core))

	fc := func() (string, int64) { return "SELECT 1", 1 }

	t.Run("SQL 错误记 Error", func(t *testing.T) {
		l.Trace(context.Background(), time.Now(), fc, errors.New("boom"))
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.ErrorLevel, entries[0].Level)
	})

	t.Run("record not found 不按错误处理", func(t *testing.T) {
		l.Trace(context.Background(), time.Now(), fc, gormlogger.ErrRecordNotFound)
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.DebugLevel, entries[0].Level)
	})

	t.Run("慢查询记 Warn", func(t *testing.T) {
		l.Trace(context.Background(), time.Now().Add(-time.Second), fc, nil)
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
	})

	t.Run("普通查询记 Debug", func(t *testing.T) {
		l.Trace(context.Background(), time.Now(), fc, nil)
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, zap.DebugLevel, entries[0].Level)
	})
}
