package infra

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// slowQueryThreshold 慢查询告警阈值
const slowQueryThreshold = 200 * time.Millisecond

// gormZapLogger 把 GORM 的日志接到 zap 上。
// 策略固定：SQL 错误记 Error（record not found 除外），
// 超过阈值的慢查询记 Warn，其余 SQL 只记 Debug；
// 输出级别由 zap 统一控制，不再维护 GORM 自己的分级。
type gormZapLogger struct {
	log *zap.Logger
}

func newGormLogger(log *zap.Logger) gormlogger.Interface {
	return &gormZapLogger{log: log}
}

// LogMode 级别交给 zap，调整无效果
func (l *gormZapLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return l }

func (l *gormZapLogger) Info(_ context.Context, msg string, data ...interface{}) {
	l.log.Sugar().Infof(msg, data...)
}

func (l *gormZapLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	l.log.Sugar().Warnf(msg, data...)
}

func (l *gormZapLogger) Error(_ context.Context, msg string, data ...interface{}) {
	l.log.Sugar().Errorf(msg, data...)
}

// Trace SQL 执行日志
func (l *gormZapLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound):
		l.log.Error("SQL 执行错误", append(fields, zap.Error(err))...)
	case elapsed > slowQueryThreshold:
		l.log.Warn("SQL 慢查询", fields...)
	default:
		l.log.Debug("SQL 执行", fields...)
	}
}
