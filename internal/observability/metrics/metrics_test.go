package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestObserveRequestExposedInHandler(t *testing.T) {
	m := New()
	m.ObserveRequest(http.MethodGet, "/v1/status", 200, 0.01)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "spiritstream_http_requests_total") {
		t.Fatalf("expected request counter in exposition, got:\n%s", body)
	}
	if !strings.Contains(body, `status="2xx"`) {
		t.Fatalf("expected status=2xx label, got:\n%s", body)
	}
}

func TestGroupStateAndSpawnFailureCounters(t *testing.T) {
	m := New()
	m.ObserveGroupStateChange("running")
	m.ObserveGroupStateChange("running")
	m.ObserveSpawnFailure("binary-not-found")
	m.SetActiveGroups(3)
	m.ObserveSampleRate("group-1", 29.97)
	m.ObserveEventDropped()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`spiritstream_group_state_transitions_total{to_state="running"} 2`,
		`spiritstream_encoder_spawn_failures_total{reason="binary-not-found"} 1`,
		"spiritstream_active_groups 3",
		`spiritstream_encoder_fps{group_id="group-1"} 29.97`,
		"spiritstream_eventbus_dropped_total 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected exposition to contain %q, got:\n%s", want, body)
		}
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := New()
	handler := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 passthrough, got %d", rec.Code)
	}

	metricsRec := httptest.NewRecorder()
	m.Handler().ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(metricsRec.Body.String(), `status="4xx"`) {
		t.Fatalf("expected status=4xx recorded by middleware, got:\n%s", metricsRec.Body.String())
	}
}

func TestResponseRecorderDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	rr := NewResponseRecorder(rec)
	if rr.Status() != http.StatusOK {
		t.Fatalf("expected default status 200, got %d", rr.Status())
	}
	rr.WriteHeader(http.StatusTeapot)
	if rr.Status() != http.StatusTeapot {
		t.Fatalf("expected captured status 418, got %d", rr.Status())
	}
}
