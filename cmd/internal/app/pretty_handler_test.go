package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPrettyHandler_RendersOneLine(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false)
	log := slog.New(h)

	log.Info("http.request", "method", "get", "path", "/api/me", "status", 200, "duration_ms", int64(3))

	out := buf.String()
	if strings.Count(out, "\n") != 1 {
		t.Fatalf("expected a single line, got %q", out)
	}
	for _, want := range []string{"lvl=[INFO]", "msg=http.request", "method=GET", "path=/api/me", "status=200", "duration=3ms"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color disabled but output contains ANSI escapes: %q", out)
	}
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error not enabled at warn level")
	}
}

func TestPrettyHandler_GroupsFlattenKeys(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newPrettyHandler(&buf, nil, false)
	log := slog.New(h).WithGroup("db").With("schema", "trustbridge")

	log.Info("db.ready")
	if !strings.Contains(buf.String(), "db.schema=trustbridge") {
		t.Fatalf("grouped attr not flattened: %q", buf.String())
	}
}

func TestQuoteIfNeeded(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{in: "", want: `""`},
		{in: "plain", want: "plain"},
		{in: "two words", want: `"two words"`},
		{in: `a="b"`, want: `"a=\"b\""`},
	}
	for _, tc := range cases {
		if got := quoteIfNeeded(tc.in); got != tc.want {
			t.Fatalf("quoteIfNeeded(%q)=%q want=%q", tc.in, got, tc.want)
		}
	}
}

func TestLevelTag_Colored(t *testing.T) {
	t.Parallel()

	if got := levelTag(slog.LevelError, true); !strings.HasPrefix(got, ansiRed) {
		t.Fatalf("error tag not red: %q", got)
	}
	if got := levelTag(slog.LevelInfo, false); got != "[INFO]" {
		t.Fatalf("plain info tag = %q", got)
	}
}

func TestValueToString_Kinds(t *testing.T) {
	t.Parallel()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		in   slog.Value
		want string
	}{
		{slog.StringValue("x"), "x"},
		{slog.IntValue(42), "42"},
		{slog.BoolValue(true), "true"},
		{slog.DurationValue(2 * time.Second), "2s"},
		{slog.TimeValue(ts), "2025-06-01T12:00:00Z"},
	}
	for _, tc := range cases {
		if got := valueToString(tc.in); got != tc.want {
			t.Fatalf("valueToString(%v)=%q want=%q", tc.in, got, tc.want)
		}
	}
}
