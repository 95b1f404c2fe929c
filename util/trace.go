package util

import (
	"log/slog"
	"time"
)

// Trace 记录耗时，用法: defer util.Trace("remove background")()
func Trace(msg string) func() {
	start := time.Now()
	slog.Debug("enter " + msg)
	return func() {
		slog.Info("exit "+msg, "elapsed", time.Since(start))
	}
}
