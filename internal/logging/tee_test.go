package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestTeeLoggerRespectsPerHandlerLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	logger := TeeLogger(
		slog.New(slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})),
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)

	logger.Debug("only debug")
	logger.Info("both")

	if strings.Contains(infoBuf.String(), "only debug") {
		t.Fatal("info handler should not receive debug records")
	}
	if !strings.Contains(infoBuf.String(), "both") {
		t.Fatalf("info handler missing record: %q", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), "only debug") || !strings.Contains(debugBuf.String(), "both") {
		t.Fatalf("debug handler missing records: %q", debugBuf.String())
	}
}

func TestTeeLoggerCarriesAttrs(t *testing.T) {
	var baseBuf, teeBuf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&baseBuf, nil))
	logger := TeeLogger(base, nil, slog.NewTextHandler(&teeBuf, nil)).With(String(FieldTaskID, "t-1"))

	logger.Info("hello")

	for name, out := range map[string]string{"base": baseBuf.String(), "tee": teeBuf.String()} {
		if !strings.Contains(out, "task_id=t-1") {
			t.Fatalf("%s output missing task_id: %q", name, out)
		}
	}
}

func TestTeeLoggerWithNothingDiscards(t *testing.T) {
	logger := TeeLogger(nil, nil)
	if _, ok := logger.Handler().(discardHandler); !ok {
		t.Fatalf("expected discard handler, got %T", logger.Handler())
	}
}
