package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFor(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		" DeBuG ": slog.LevelDebug,
	}
	for input, want := range cases {
		if got := levelFor(input); got != want {
			t.Errorf("levelFor(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewWritesJSONByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf})
	logger.Info("hello")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if payload["msg"] != "hello" {
		t.Fatalf("unexpected message %v", payload["msg"])
	}
}

func TestNewTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Format: "text"})
	logger.Info("hello world")

	if !strings.Contains(buf.String(), "msg=") {
		t.Fatalf("expected text handler output, got %q", buf.String())
	}
}

func TestInitSetsDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(Config{Writer: &buf, Level: "debug"})
	if logger != slog.Default() {
		t.Fatal("expected Init to replace the default logger")
	}

	slog.Info("hello world")
	if !strings.Contains(buf.String(), "hello world") {
		t.Fatalf("expected default logger output, got %q", buf.String())
	}
}

func TestWithComponentTagsRecords(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithComponent(logger, ComponentQueue).Info("claimed")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal log output: %v", err)
	}
	if payload["component"] != ComponentQueue {
		t.Fatalf("expected component %q, got %v", ComponentQueue, payload["component"])
	}

	if got := WithComponent(nil, "anything"); got != nil {
		t.Fatalf("expected nil logger passthrough, got %v", got)
	}
}

func TestWorkerComponent(t *testing.T) {
	if got := WorkerComponent("download"); got != "worker.download" {
		t.Fatalf("WorkerComponent = %q", got)
	}
}

func TestWithJobAnnotatesLifecycleFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	WithJob(logger, "job-1", "DOWNLOAD_DESIGN", 2).Warn("fetch failed")

	var payload map[string]any
	if err := json.Unmarshal(buf.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal log output: %v", err)
	}
	if payload["job_id"] != "job-1" {
		t.Fatalf("expected job_id, got %v", payload["job_id"])
	}
	if payload["kind"] != "DOWNLOAD_DESIGN" {
		t.Fatalf("expected kind, got %v", payload["kind"])
	}
	if payload["attempt"] != float64(2) {
		t.Fatalf("expected attempt 2, got %v", payload["attempt"])
	}
}

func TestJobIDContextRoundTrip(t *testing.T) {
	ctx := ContextWithJobID(context.Background(), "job-42")
	if id, ok := JobIDFromContext(ctx); !ok || id != "job-42" {
		t.Fatalf("expected job-42, got %q ok=%v", id, ok)
	}

	if _, ok := JobIDFromContext(context.Background()); ok {
		t.Fatal("expected no job id on a fresh context")
	}
	if ctx := ContextWithJobID(context.Background(), "  "); ctx != context.Background() {
		t.Fatal("expected blank job id to leave the context untouched")
	}
}
