package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "github.com/openmusicplayer/mediagrab/internal/errors"
)

func decode(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse log entry %q: %v", buf.String(), err)
	}
	return entry
}

func TestLogger_BasicLogging(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Output: &buf, Level: LevelDebug})

	log.Info(context.Background(), "test message", map[string]interface{}{
		"key": "value",
	})

	entry := decode(t, &buf)
	if entry["level"] != "info" {
		t.Errorf("expected level info, got %v", entry["level"])
	}
	if entry["message"] != "test message" {
		t.Errorf("expected message 'test message', got %v", entry["message"])
	}
	if entry["key"] != "value" {
		t.Errorf("expected field key=value, got %v", entry["key"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("expected timestamp field")
	}
}

func TestLogger_ContextPropagation(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Output: &buf, Level: LevelDebug}).WithComponent("engine")

	ctx := apperrors.WithRequestID(context.Background(), "test-request-id")
	ctx = apperrors.WithTaskID(ctx, "task-1")
	log.Info(ctx, "tick")

	entry := decode(t, &buf)
	if entry["request_id"] != "test-request-id" {
		t.Errorf("expected request_id 'test-request-id', got %v", entry["request_id"])
	}
	if entry["task_id"] != "task-1" {
		t.Errorf("expected task_id 'task-1', got %v", entry["task_id"])
	}
	if entry["component"] != "engine" {
		t.Errorf("expected component 'engine', got %v", entry["component"])
	}
}

func TestLogger_ErrorDetails(t *testing.T) {
	var buf bytes.Buffer
	log := New(&Config{Output: &buf, Level: LevelInfo})

	log.Error(context.Background(), "synthesis failed", apperrors.ProducerError("empty title"))

	entry := decode(t, &buf)
	if entry["error_code"] != apperrors.CodeProducerError {
		t.Errorf("expected error_code %s, got %v", apperrors.CodeProducerError, entry["error_code"])
	}
	if caller, _ := entry["caller"].(string); !strings.Contains(caller, "logger_test.go") {
		t.Errorf("expected caller to point at the test, got %v", entry["caller"])
	}
}

func TestLogger_LogLevels(t *testing.T) {
	tests := []struct {
		minLevel     Level
		logLevel     string
		shouldOutput bool
	}{
		{LevelInfo, "debug", false},
		{LevelInfo, "info", true},
		{LevelWarn, "info", false},
		{LevelWarn, "warn", true},
		{LevelError, "warn", false},
		{LevelError, "error", true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		log := New(&Config{Output: &buf, Level: tt.minLevel})

		ctx := context.Background()
		switch tt.logLevel {
		case "debug":
			log.Debug(ctx, "test")
		case "info":
			log.Info(ctx, "test")
		case "warn":
			log.Warn(ctx, "test")
		case "error":
			log.Error(ctx, "test", nil)
		}

		hasOutput := buf.Len() > 0
		if hasOutput != tt.shouldOutput {
			t.Errorf("minLevel=%s, logLevel=%s: expected output=%v, got=%v",
				tt.minLevel, tt.logLevel, tt.shouldOutput, hasOutput)
		}
	}
}

func TestRedactor_SensitiveKeys(t *testing.T) {
	r := DefaultRedactor()

	out := r.RedactFields(map[string]interface{}{
		"bucket":        "artifacts",
		"s3_secret_key": "hunter2",
		"access_key":    "AKIA",
	})

	if out["bucket"] != "artifacts" {
		t.Errorf("bucket should not be redacted")
	}
	if out["s3_secret_key"] != "[REDACTED]" {
		t.Errorf("secret should be redacted, got %v", out["s3_secret_key"])
	}
	if out["access_key"] != "[REDACTED]" {
		t.Errorf("access key should be redacted, got %v", out["access_key"])
	}
}

func TestRedactor_PresignedURL(t *testing.T) {
	r := DefaultRedactor()

	url := "http://minio:9000/artifacts/a.wav?X-Amz-Credential=AKIA%2F20240101&X-Amz-Signature=abcdef0123"
	got := r.Redact(url)

	if strings.Contains(got, "abcdef0123") || strings.Contains(got, "AKIA") {
		t.Errorf("expected credentials to be redacted, got %s", got)
	}
	if !strings.Contains(got, "/artifacts/a.wav") {
		t.Errorf("expected object path to survive, got %s", got)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"unknown", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.input); got != tt.expected {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(&Config{Output: &buf, Level: LevelInfo}))
	defer SetDefault(prev)

	h := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rr.Code)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Errorf("expected panic to be logged, got %s", buf.String())
	}
}

func TestLoggingMiddleware_SkipsHealth(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(&Config{Output: &buf, Level: LevelDebug}))
	defer SetDefault(prev)

	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if buf.Len() != 0 {
		t.Errorf("expected no log output for health probe, got %s", buf.String())
	}

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	if !strings.Contains(buf.String(), "request completed") {
		t.Errorf("expected request to be logged, got %s", buf.String())
	}
}

func TestLoggingMiddleware_TagsTaskID(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(&Config{Output: &buf, Level: LevelInfo}))
	defer SetDefault(prev)

	var seen string
	h := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = apperrors.GetTaskID(r.Context())
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tasks/abc123/artifact", nil)
	req.RemoteAddr = "10.0.0.7:51234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	if seen != "abc123" {
		t.Errorf("expected task id in handler context, got %q", seen)
	}
	entry := decode(t, &buf)
	if entry["message"] != "request rejected" || entry["remote_ip"] != "10.0.0.7" {
		t.Errorf("unexpected log entry %v", entry)
	}
}

func TestTaskIDFromPath(t *testing.T) {
	tests := map[string]string{
		"/api/v1/tasks/abc":          "abc",
		"/api/v1/tasks/abc/cancel":   "abc",
		"/api/v1/tasks":              "",
		"/api/v1/search/suggestions": "",
	}
	for path, want := range tests {
		if got := taskIDFromPath(path); got != want {
			t.Errorf("taskIDFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}
