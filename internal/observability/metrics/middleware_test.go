package metrics

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestInstrumentRecordsRequestMetrics(t *testing.T) {
	recorder := New()
	handler := Instrument(recorder, nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/widgets/abc123", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var buf bytes.Buffer
	recorder.Write(&buf)
	body := buf.String()

	expected := `printarr_http_requests_total{method="GET",path="/widgets/:id",status="418"} 1`
	if !strings.Contains(body, expected) {
		t.Fatalf("expected metrics output to contain %q, got %q", expected, body)
	}
}

func TestInstrumentLogsOneLinePerRequest(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	handler := Instrument(New(), logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var payload map[string]any
	if err := json.Unmarshal(logBuf.Bytes(), &payload); err != nil {
		t.Fatalf("decode log entry: %v", err)
	}
	if payload["status"] != float64(http.StatusAccepted) {
		t.Fatalf("expected status %d, got %v", http.StatusAccepted, payload["status"])
	}
	if payload["path"] != "/healthz" {
		t.Fatalf("expected path logged, got %v", payload["path"])
	}
	if payload["remote_addr"] != "127.0.0.1:1234" {
		t.Fatalf("expected remote_addr logged, got %v", payload["remote_addr"])
	}
}

func TestInstrumentDefaultsStatusTo200(t *testing.T) {
	recorder := New()
	handler := Instrument(recorder, nil, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok")) // no explicit WriteHeader
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var buf bytes.Buffer
	recorder.Write(&buf)
	if !strings.Contains(buf.String(), `status="200"`) {
		t.Fatalf("expected implicit 200 to be recorded, got %q", buf.String())
	}
}

func TestDefaultRecorderObservesRequests(t *testing.T) {
	Default().Reset()
	t.Cleanup(func() { Default().Reset() })

	ObserveRequest("POST", "/jobs/123", http.StatusCreated, 150*time.Millisecond)

	var buf bytes.Buffer
	Default().Write(&buf)
	body := buf.String()

	expected := `printarr_http_requests_total{method="POST",path="/jobs/:id",status="201"} 1`
	if !strings.Contains(body, expected) {
		t.Fatalf("expected default recorder metrics to include %q, got %q", expected, body)
	}
}
