package logger

import (
	"context"
	"log/slog"
)

type ctxKey string

const fieldsKey ctxKey = "log_fields"

// With returns a context carrying extra log fields. Records logged with that
// context through a Configure'd logger get the fields appended.
func With(ctx context.Context, fields ...any) context.Context {
	prev := fieldsFrom(ctx)
	merged := make([]any, 0, len(prev)+len(fields))
	merged = append(merged, prev...)
	merged = append(merged, fields...)
	return context.WithValue(ctx, fieldsKey, merged)
}

// From returns the process logger with the context fields bound, for code that
// logs without passing ctx.
func From(ctx context.Context) *slog.Logger {
	return LoggerWrapper().With(fieldsFrom(ctx)...)
}

func fieldsFrom(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	fields, _ := ctx.Value(fieldsKey).([]any)
	return fields
}

// contextHandler appends context fields the record does not already carry.
type contextHandler struct {
	slog.Handler
}

func NewContextHandler(h slog.Handler) slog.Handler {
	return contextHandler{Handler: h}
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	fields := fieldsFrom(ctx)
	if len(fields) == 0 {
		return h.Handler.Handle(ctx, r)
	}

	present := make(map[string]bool, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		present[a.Key] = true
		return true
	})

	r = r.Clone()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok || present[key] {
			continue
		}
		r.AddAttrs(slog.Any(key, fields[i+1]))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{Handler: h.Handler.WithGroup(name)}
}
