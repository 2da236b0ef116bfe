package contextutil

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestLoggerFromContext(t *testing.T) {
	if got := LoggerFromContext(context.Background()); got != slog.Default() {
		t.Error("LoggerFromContext() without logger should return slog.Default()")
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), logger)

	LoggerFromContext(ctx).Info("hello", "key", "value")
	if !bytes.Contains(buf.Bytes(), []byte("key=value")) {
		t.Errorf("expected context logger to be used, got %q", buf.String())
	}
}
