// Package logger carries a logrus entry through context so nested layers of
// a run log with the fields their caller attached.
package logger

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

type contextKey struct{}

var (
	// L is the fallback entry used when a context carries no logger.
	L = logrus.NewEntry(defaultLogger())
	// G is shorthand for FromContext.
	G = FromContext
)

// WithLogger stores entry in ctx for FromContext to retrieve.
func WithLogger(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, contextKey{}, entry.WithContext(ctx))
}

// FromContext returns the logger attached to ctx, or L bound to ctx when
// none was attached.
func FromContext(ctx context.Context) *logrus.Entry {
	if entry, ok := ctx.Value(contextKey{}).(*logrus.Entry); ok {
		return entry
	}
	return L.WithContext(ctx)
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	applyFormat(l, "fmt")
	return l
}

// applyFormat switches the formatter: "json" for log shippers, "text" and
// "fmt" (the default) for human-readable lines.
func applyFormat(l *logrus.Logger, format string) {
	if format == "json" {
		l.Formatter = &logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "logLevel",
				logrus.FieldKeyMsg:   "message",
			},
			TimestampFormat: time.RFC3339Nano,
		}
		return
	}
	l.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339Nano,
		FullTimestamp:   true,
	}
}

// SetLogLevel adjusts the global logger's level.
func SetLogLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	L.Logger.SetLevel(parsed)
	return nil
}

// SetLogFormat adjusts the global logger's output format.
func SetLogFormat(format string) {
	applyFormat(L.Logger, format)
}

// SetLogOutput redirects the global logger, mainly for tests.
func SetLogOutput(w io.Writer) {
	L.Logger.SetOutput(w)
}
