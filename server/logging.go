package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger builds the logger described by the Log section of uc. Records are
// written as text to w and, if a log file is configured, as JSON to a file
// rotated by size. The LevelVar returned controls the level of both and may
// be passed as Config.LogLevel. The io.Closer returned closes the log file.
func (uc UserConfig) Logger(w io.Writer) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	level, err := ParseLevel(uc.Log.Level)
	if err != nil {
		return nil, nil, nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(level)
	opts := &slog.HandlerOptions{Level: lv}

	handlers := []slog.Handler{slog.NewTextHandler(w, opts)}
	var closer io.Closer = nopCloser{}
	if file := strings.TrimSpace(uc.Log.File); file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    uc.Log.MaxSizeMB,
			MaxBackups: uc.Log.MaxBackups,
			MaxAge:     uc.Log.MaxAgeDays,
			Compress:   uc.Log.Compress,
		}
		handlers = append(handlers, slog.NewJSONHandler(rotating, opts))
		closer = rotating
	}
	return slog.New(newFanoutHandler(handlers...)), lv, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fanoutHandler passes every record to all of its handlers.
type fanoutHandler struct {
	handlers []slog.Handler
}

func newFanoutHandler(handlers ...slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return fanoutHandler{handlers: handlers}
}

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: handlers}
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		handlers[i] = h.WithGroup(name)
	}
	return fanoutHandler{handlers: handlers}
}
