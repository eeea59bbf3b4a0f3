// Package testutil holds helpers shared by package tests: stream network and
// prediction table fixtures, and a slog logger bound to the running test.
package testutil

import (
	"bytes"
	"log/slog"
	"testing"
)

// NewTestLogger logs at debug level into tb's log, so records show up next to
// the failing assertion (or with go test -v).
func NewTestLogger(tb testing.TB) *slog.Logger {
	tb.Helper()
	h := slog.NewTextHandler(tbLog{tb: tb}, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h).With("test", tb.Name())
}

// tbLog writes one handler record per call to the test log.
type tbLog struct {
	tb testing.TB
}

func (l tbLog) Write(p []byte) (int, error) {
	l.tb.Helper()
	l.tb.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}
