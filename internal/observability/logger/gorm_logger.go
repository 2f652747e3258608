package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// Writes to these tables move money or billing state and are logged even when fast.
var ledgerTables = map[string]struct{}{
	"invoices":      {},
	"invoice_items": {},
	"payments":      {},
}

type QueryLoggerConfig struct {
	// Level is one of silent, error, warn or info.
	Level         string
	SlowThreshold time.Duration
}

// QueryLogger routes gorm statements into the request-scoped zap logger so
// queries carry the same request and tenant fields as the handler logs.
type QueryLogger struct {
	level gormlogger.LogLevel
	slow  time.Duration
}

func NewQueryLogger(cfg QueryLoggerConfig) *QueryLogger {
	slow := cfg.SlowThreshold
	if slow <= 0 {
		slow = 200 * time.Millisecond
	}
	return &QueryLogger{level: parseQueryLevel(cfg.Level), slow: slow}
}

func parseQueryLevel(level string) gormlogger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.level = level
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		FromContext(ctx).Info(msg, zap.String("component", "db"), zap.Any("data", data))
	}
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		FromContext(ctx).Warn(msg, zap.String("component", "db"), zap.Any("data", data))
	}
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		FromContext(ctx).Error(msg, zap.String("component", "db"), zap.Any("data", data))
	}
}

// Trace logs failed statements at error and slow ones at warn. Missing rows
// are routine here (no subscription, no invoice yet) and never logged as
// failures.
func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gormlogger.ErrRecordNotFound)
	slow := elapsed > l.slow

	if !failed && !slow && l.level < gormlogger.Info {
		sql, _ := fc()
		op := operationFromSQL(sql)
		if op == "SELECT" || op == "UNKNOWN" {
			return
		}
		if _, ok := ledgerTables[tableFromSQL(sql)]; !ok {
			return
		}
		FromContext(ctx).Debug("db.ledger.write", queryFields(sql, -1, elapsed)...)
		return
	}

	sql, rows := fc()
	fields := queryFields(sql, rows, elapsed)
	log := FromContext(ctx)
	switch {
	case failed && l.level >= gormlogger.Error:
		log.Error("db.query.failed", append(fields, zap.Error(err))...)
	case slow && l.level >= gormlogger.Warn:
		log.Warn("db.query.slow", append(fields, zap.Duration("threshold", l.slow))...)
	case l.level >= gormlogger.Info:
		log.Debug("db.query", fields...)
	}
}

// ParamsFilter drops bound values; emails and receipt references must not reach the logs.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

func queryFields(sql string, rows int64, elapsed time.Duration) []zap.Field {
	fields := []zap.Field{
		zap.String("component", "db"),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
		zap.String("sql", strings.TrimSpace(sql)),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows", rows))
	}
	return fields
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		}
	}
	return "UNKNOWN"
}

// tableFromSQL returns the first table named after FROM, INTO or UPDATE.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE":
			name := strings.Trim(tokens[i+1], "\"`();")
			if name != "" && !strings.HasPrefix(name, "(") {
				return strings.ToLower(name)
			}
		}
	}
	return ""
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
