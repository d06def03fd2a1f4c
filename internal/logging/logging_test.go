package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["msg"] != "shown" {
		t.Fatalf("expected only the warning, got %v", lines)
	}

	buf.Reset()
	New(&buf, "nonsense").Info("info")
	if len(decodeLines(t, &buf)) != 1 {
		t.Fatal("expected unknown level to fall back to info")
	}
}

func TestFromContextFallsBack(t *testing.T) {
	if FromContext(context.Background()) != slog.Default() {
		t.Fatal("expected default logger")
	}

	var buf bytes.Buffer
	ctx := With(WithLogger(context.Background(), New(&buf, "info")), "userId", "user-1")
	FromContext(ctx).Info("hello")

	lines := decodeLines(t, &buf)
	if lines[0]["userId"] != "user-1" {
		t.Fatalf("expected attribute on context logger, got %v", lines[0])
	}
}

func TestSpanUsesRequestIDAsTrace(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug"))
	ctx = WithRequestID(ctx, "req-1")

	ctx, parent := StartSpan(ctx, "outer")
	_, child := StartSpan(ctx, "inner")
	child.Fail(errors.New("boom"))
	child.End()
	parent.End()

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected two span lines got %d", len(lines))
	}
	if lines[0]["msg"] != "span failed" || lines[0]["error"] != "boom" {
		t.Fatalf("expected failed child span, got %v", lines[0])
	}
	if lines[0]["parent_span_id"] != lines[1]["span_id"] {
		t.Fatal("expected child to reference its parent")
	}
	if _, ok := lines[1]["trace_id"]; ok {
		t.Fatal("request id should serve as the trace id")
	}
	if lines[1]["msg"] != "span completed" {
		t.Fatalf("expected completed parent span, got %v", lines[1])
	}
}

func TestSpanStartsTraceWithoutRequest(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), New(&buf, "debug"))

	ctx, span := StartSpan(ctx, "background")
	span.End()

	if RequestIDFromContext(ctx) == "" {
		t.Fatal("expected a trace id to be assigned")
	}
	if lines := decodeLines(t, &buf); lines[0]["trace_id"] == nil {
		t.Fatalf("expected trace id on span logger, got %v", lines[0])
	}
}
