package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewEmitsJSONAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "warn", Writer: &buf})

	logger.Info().Msg("should be filtered")
	logger.Warn().Msg("should appear")

	out := buf.String()
	if strings.Contains(out, "should be filtered") {
		t.Fatalf("info line should have been filtered by warn level, got: %s", out)
	}
	if !strings.Contains(out, "should appear") {
		t.Fatalf("expected warn line in output, got: %s", out)
	}

	var decoded map[string]any
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &decoded); err != nil {
		t.Fatalf("expected JSON output, got error %v for line %q", err, lines[len(lines)-1])
	}
}

func TestConsoleFormatProducesNonJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Writer: &buf, Format: "console"})
	logger.Info().Msg("hello")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err == nil {
		t.Fatalf("expected console output to not be raw JSON, got: %s", buf.String())
	}
}

func TestContextHelpersRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = ContextWithRequestID(ctx, "req-1")
	ctx = ContextWithStreamID(ctx, "group-1")

	reqID, ok := RequestIDFromContext(ctx)
	if !ok || reqID != "req-1" {
		t.Fatalf("expected request id req-1, got %q (ok=%v)", reqID, ok)
	}
	streamID, ok := StreamIDFromContext(ctx)
	if !ok || streamID != "group-1" {
		t.Fatalf("expected stream id group-1, got %q (ok=%v)", streamID, ok)
	}

	if _, ok := RequestIDFromContext(context.Background()); ok {
		t.Fatal("expected no request id on a bare context")
	}
}

func TestWithContextAttachesFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	ctx = ContextWithStreamID(ctx, "group-9")

	enriched := WithContext(ctx, base)
	enriched.Info().Msg("hi")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["request_id"] != "req-42" {
		t.Fatalf("expected request_id field, got %v", decoded["request_id"])
	}
	if decoded["group_id"] != "group-9" {
		t.Fatalf("expected group_id field, got %v", decoded["group_id"])
	}
}

func TestRequestLoggerMiddlewareLogsCompletion(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	handler := RequestLogger(RequestLoggerConfig{Logger: logger})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/profiles/demo/start", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("unmarshal: %v, body: %s", err, buf.String())
	}
	if decoded["status"] != float64(http.StatusCreated) {
		t.Fatalf("expected status 201 logged, got %v", decoded["status"])
	}
	if decoded["method"] != http.MethodPost {
		t.Fatalf("expected method POST logged, got %v", decoded["method"])
	}
}
