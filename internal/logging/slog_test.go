package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newTestSlogLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestSlogLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()

	tests := []struct {
		level string
		msg   string
		kv    string
	}{
		{"DEBUG", "dbg", "a=1"},
		{"INFO", "inf", "b=2"},
		{"WARN", "wrn", "c=3"},
		{"ERROR", "err", "d=4"},
	}

	for _, tc := range tests {
		for _, want := range []string{"level=" + tc.level, "msg=" + tc.msg, tc.kv} {
			if !strings.Contains(out, want) {
				t.Fatalf("expected %q in output:\n%s", want, out)
			}
		}
	}
}

func TestSlogLogger_With(t *testing.T) {
	log, buf := newTestSlogLogger(t)

	log.With("request_id", "123", "user_id", "u1").Info(context.Background(), "hello", "k", "v")

	out := buf.String()
	for _, s := range []string{"level=INFO", "msg=hello", "request_id=123", "user_id=u1", "k=v"} {
		if !strings.Contains(out, s) {
			t.Fatalf("expected %q in output, got:\n%s", s, out)
		}
	}
}

func TestNew_SlogUsesZerologFieldNames(t *testing.T) {
	var buf bytes.Buffer
	log, err := New(BackendSlog, "debug", &buf)
	if err != nil {
		t.Fatal(err)
	}

	log.With("request_id", "r1").Warn(context.Background(), "slow upload", "size", 42)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("not a JSON line: %v\n%s", err, buf.String())
	}
	want := map[string]any{"level": "warn", "message": "slow upload", "request_id": "r1", "size": float64(42)}
	for k, v := range want {
		if line[k] != v {
			t.Fatalf("%s = %v, want %v in %s", k, line[k], v, buf.String())
		}
	}
	if _, ok := line["time"]; !ok {
		t.Fatalf("missing time in %s", buf.String())
	}
}

func TestNew_SlogRejectsBadLevel(t *testing.T) {
	if _, err := New(BackendSlog, "loud", &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error for an unknown level")
	}
}
