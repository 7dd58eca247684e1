package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlLogLimit caps how much of a statement lands in a log line. Embedding
// updates carry kilobytes of vector literals that would drown the log.
const sqlLogLimit = 200

// slogGormLogger routes GORM's internal logging through slog. GORM's own
// level knob is ignored; whatever level slog is configured with decides
// what gets through.
type slogGormLogger struct{}

func (l slogGormLogger) LogMode(logger.LogLevel) logger.Interface { return l }

// GORM hands these printf-style messages; render them before they reach slog.
func (l slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	slog.InfoContext(ctx, fmt.Sprintf(msg, args...))
}

func (l slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	slog.WarnContext(ctx, fmt.Sprintf(msg, args...))
}

func (l slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	slog.ErrorContext(ctx, fmt.Sprintf(msg, args...))
}

// Trace runs after every statement. Failures log at Error; successful
// statements log at Debug, and the SQL string is only rendered when Debug
// is actually enabled. gorm.ErrRecordNotFound is the ordinary miss from
// First() and is treated as success.
func (l slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		sql, rows := fc()
		slog.ErrorContext(ctx, "sql statement failed",
			slog.String("sql", clipSQL(sql)),
			slog.Int64("rows", rows),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()),
		)
		return
	}

	if !slog.Default().Enabled(ctx, slog.LevelDebug) {
		return
	}
	sql, rows := fc()
	slog.DebugContext(ctx, "sql statement",
		slog.String("sql", clipSQL(sql)),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	)
}

func clipSQL(sql string) string {
	if len(sql) <= sqlLogLimit {
		return sql
	}
	return sql[:sqlLogLimit] + "…"
}
