package whatsapp

import (
	"context"
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// waLogger bridges whatsmeow's logging interface onto the structured logger.
type waLogger struct {
	l *slog.Logger
}

func (w waLogger) logf(level slog.Level, msg string, args []interface{}) {
	if w.l == nil {
		return
	}
	w.l.Log(context.Background(), level, fmt.Sprintf(msg, args...))
}

func (w waLogger) Errorf(msg string, args ...interface{}) { w.logf(slog.LevelError, msg, args) }
func (w waLogger) Warnf(msg string, args ...interface{})  { w.logf(slog.LevelWarn, msg, args) }
func (w waLogger) Infof(msg string, args ...interface{})  { w.logf(slog.LevelInfo, msg, args) }
func (w waLogger) Debugf(msg string, args ...interface{}) { w.logf(slog.LevelDebug, msg, args) }

func (w waLogger) Sub(module string) waLog.Logger {
	if w.l == nil {
		return w
	}
	return waLogger{w.l.With("wa_module", module)}
}
