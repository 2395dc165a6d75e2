package storage

import (
	"context"
	"errors"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"locatorcheck/internal/ctxkeys"
	"locatorcheck/internal/logger"
)

// GormLogger 将 GORM 日志转发到项目日志，附带链路 ID
type GormLogger struct {
	log           logger.Logger
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

var _ gormlogger.Interface = (*GormLogger)(nil)

// NewGormLogger 默认只输出告警、错误与慢查询
func NewGormLogger(l logger.Logger) *GormLogger {
	if l == nil {
		l = logger.NewNop()
	}
	return &GormLogger{
		log:           l.With("component", "gorm"),
		level:         gormlogger.Warn,
		slowThreshold: 200 * time.Millisecond,
	}
}

// LogMode 返回指定级别的副本
func (g *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *g
	c.level = level
	return &c
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Info {
		g.traced(ctx).Info(msg, "data", data)
	}
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Warn {
		g.traced(ctx).Warn(msg, "data", data)
	}
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if g.level >= gormlogger.Error {
		g.traced(ctx).Error(msg, "data", data)
	}
}

// Trace 记录 SQL；未找到记录不视为错误
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	notFound := errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := g.slowThreshold > 0 && elapsed > g.slowThreshold

	if !(err != nil && !notFound && g.level >= gormlogger.Error) &&
		!(slow && g.level >= gormlogger.Warn) &&
		g.level < gormlogger.Info {
		return
	}

	sql, rows := fc()
	l := g.traced(ctx).With("sql", sql, "rows", rows, "elapsed", elapsed)
	switch {
	case err != nil && !notFound && g.level >= gormlogger.Error:
		l.Err(err, "SQL 执行失败")
	case slow && g.level >= gormlogger.Warn:
		l.Warn("慢查询", "threshold", g.slowThreshold)
	default:
		l.Debug("SQL")
	}
}

func (g *GormLogger) traced(ctx context.Context) logger.Logger {
	if id := ctxkeys.TraceID(ctx); id != "" {
		return g.log.With("traceId", id)
	}
	return g.log
}
