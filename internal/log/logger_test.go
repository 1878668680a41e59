package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerStampsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: ComponentHTTP,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}),
	})

	logger.Info("Request handled", FieldStatus, 200)

	out := buf.String()
	if !strings.Contains(out, FieldComponent+"="+ComponentHTTP) {
		t.Errorf("missing component attribute: %q", out)
	}
	if !strings.Contains(out, FieldStatus+"=200") {
		t.Errorf("missing caller attribute: %q", out)
	}
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: ComponentWorker,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}),
	})

	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("info logged below handler level: %q", buf.String())
	}

	logger.Warn("kept", FieldError, "boom")
	if !strings.Contains(buf.String(), "kept") {
		t.Errorf("warn not logged: %q", buf.String())
	}
}
