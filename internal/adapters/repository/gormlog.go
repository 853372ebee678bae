package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/okian/intervue/pkg/logger"
)

const slowQuery = 200 * time.Millisecond

// gormLog routes gorm output into the service logger.
type gormLog struct {
	log   logger.Logger
	level gormlogger.LogLevel
}

func newGormLog(l logger.Logger, traceAll bool) *gormLog {
	level := gormlogger.Warn
	if traceAll {
		level = gormlogger.Info
	}
	return &gormLog{log: l, level: level}
}

func (g *gormLog) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *g
	c.level = level
	return &c
}

func (g *gormLog) Info(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= gormlogger.Info {
		g.log.Info(ctx, fmt.Sprintf(msg, data...))
	}
}

func (g *gormLog) Warn(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= gormlogger.Warn {
		g.log.Warn(ctx, fmt.Sprintf(msg, data...))
	}
}

func (g *gormLog) Error(ctx context.Context, msg string, data ...interface{}) {
	if g.level >= gormlogger.Error {
		g.log.Error(ctx, fmt.Sprintf(msg, data...))
	}
}

func (g *gormLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []logger.Field{
		logger.Duration("elapsed", elapsed),
		logger.Int64("rows", rows),
		logger.String("sql", sql),
	}

	switch {
	case err != nil && g.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		g.log.Error(ctx, "sql failed", append(fields, logger.Error(err))...)
	case elapsed > slowQuery && g.level >= gormlogger.Warn:
		g.log.Warn(ctx, "slow sql", fields...)
	case g.level >= gormlogger.Info:
		g.log.Debug(ctx, "sql", fields...)
	}
}
