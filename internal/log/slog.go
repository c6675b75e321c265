package log

import (
	"fmt"
	"log/slog"
	"os"
)

// New returns a Modular logger backed by log/slog, writing logfmt-style
// lines to stderr at the given level ("debug", "info", "warn", "error").
func New(level string) Modular {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return NewSlogAdapter(slog.New(handler))
}

type slogHandler struct {
	slog *slog.Logger
}

// NewSlogAdapter wraps an existing *slog.Logger as a Modular logger.
func NewSlogAdapter(l *slog.Logger) Modular {
	return &slogHandler{slog: l}
}

func (l *slogHandler) WithFields(fields map[string]string) Modular {
	tmp := l.slog
	for k, v := range fields {
		tmp = tmp.With(slog.String(k, v))
	}
	c := *l
	c.slog = tmp
	return &c
}

func (l *slogHandler) With(keyValues ...any) Modular {
	c := *l
	c.slog = l.slog.With(keyValues...)
	return &c
}

func (l *slogHandler) Errorf(format string, v ...any) { l.slog.Error(fmt.Sprintf(format, v...)) }
func (l *slogHandler) Warnf(format string, v ...any)  { l.slog.Warn(fmt.Sprintf(format, v...)) }
func (l *slogHandler) Infof(format string, v ...any)  { l.slog.Info(fmt.Sprintf(format, v...)) }
func (l *slogHandler) Debugf(format string, v ...any) { l.slog.Debug(fmt.Sprintf(format, v...)) }

func (l *slogHandler) Errorln(message string) { l.slog.Error(message) }
func (l *slogHandler) Warnln(message string)  { l.slog.Warn(message) }
func (l *slogHandler) Infoln(message string)  { l.slog.Info(message) }
func (l *slogHandler) Debugln(message string) { l.slog.Debug(message) }
