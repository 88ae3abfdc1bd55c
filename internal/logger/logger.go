// Package logger строит корневой slog.Logger процесса.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// New — JSON- или текстовый логгер; неизвестный формат трактуется как json.
func New(level slog.Level, format string, addSource bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: addSource}
	var h slog.Handler
	if format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// Component — логгер подсистемы с полем component.
func Component(log *slog.Logger, name string) *slog.Logger {
	return log.With(slog.String("component", name))
}
