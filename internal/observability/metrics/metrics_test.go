package metrics

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestObserveRequestAndNormalizePath(t *testing.T) {
	recorder := New()

	type testCase struct {
		name     string
		method   string
		path     string
		status   int
		duration time.Duration
	}

	cases := []testCase{
		{name: "root path", method: "get", path: "/", status: 200, duration: 50 * time.Millisecond},
		{name: "empty path", method: "GET", path: "", status: 200, duration: 25 * time.Millisecond},
		{name: "id segment", method: "post", path: "/designs/123", status: 201, duration: 100 * time.Millisecond},
		{name: "trailing slash and alpha id", method: "POST", path: "/designs/abc123def/", status: 201, duration: 50 * time.Millisecond},
		{name: "multi ids", method: "PATCH", path: "jobs/abc/456/extra", status: 404, duration: 10 * time.Millisecond},
	}

	expectedCounts := make(map[requestLabel]struct {
		count    uint64
		duration time.Duration
	})

	for _, tc := range cases {
		recorder.ObserveRequest(tc.method, tc.path, tc.status, tc.duration)

		label := requestLabel{
			method: strings.ToUpper(tc.method),
			path:   normalizePath(tc.path),
			status: fmt.Sprintf("%d", tc.status),
		}
		current := expectedCounts[label]
		current.count++
		current.duration += tc.duration
		expectedCounts[label] = current
	}

	if len(recorder.requestCount) != len(expectedCounts) {
		t.Fatalf("unexpected number of labels: got %d want %d", len(recorder.requestCount), len(expectedCounts))
	}

	for label, expected := range expectedCounts {
		gotCount := recorder.requestCount[label]
		gotDuration := recorder.requestDuration[label]
		if gotCount != expected.count {
			t.Errorf("count mismatch for %+v: got %d want %d", label, gotCount, expected.count)
		}
		if gotDuration != expected.duration {
			t.Errorf("duration mismatch for %+v: got %s want %s", label, gotDuration, expected.duration)
		}
	}

	labels := recorder.sortedRequestLabels()
	sortedExpected := make([]requestLabel, 0, len(expectedCounts))
	for label := range expectedCounts {
		sortedExpected = append(sortedExpected, label)
	}
	sort.Slice(sortedExpected, func(i, j int) bool {
		if sortedExpected[i].method != sortedExpected[j].method {
			return sortedExpected[i].method < sortedExpected[j].method
		}
		if sortedExpected[i].path != sortedExpected[j].path {
			return sortedExpected[i].path < sortedExpected[j].path
		}
		return sortedExpected[i].status < sortedExpected[j].status
	})

	if len(labels) != len(sortedExpected) {
		t.Fatalf("sorted labels length mismatch: got %d want %d", len(labels), len(sortedExpected))
	}

	for i := range labels {
		if labels[i] != sortedExpected[i] {
			t.Errorf("sorted label %d mismatch: got %+v want %+v", i, labels[i], sortedExpected[i])
		}
	}
}

func TestActiveWorkersGaugeConcurrent(t *testing.T) {
	recorder := New()

	var wg sync.WaitGroup
	starts := 100
	stops := 150

	wg.Add(starts)
	for i := 0; i < starts; i++ {
		go func() {
			defer wg.Done()
			recorder.WorkerStarted()
		}()
	}
	wg.Wait()

	// Every start has landed; the concurrent stops drain the gauge to 0 and
	// the extra 50 are clamped there.
	wg.Add(stops)
	for i := 0; i < stops; i++ {
		go func() {
			defer wg.Done()
			recorder.WorkerFinished()
		}()
	}

	wg.Wait()

	if active := recorder.ActiveWorkers(); active != 0 {
		t.Fatalf("active workers should not go negative; got %d", active)
	}
}

func TestWriteAndHandlerOutput(t *testing.T) {
	recorder := New()

	recorder.ObserveRequest("GET", "/designs/abc123", 200, 150*time.Millisecond)
	recorder.ObserveRequest("get", "/designs/456/", 200, 50*time.Millisecond)
	recorder.ObserveRequest("POST", "/designs", 201, time.Second)

	recorder.ObserveJobEvent("download_design", "succeeded")
	recorder.ObserveJobEvent("download_design", "succeeded")
	recorder.ObserveJobEvent("download_design", "failed")

	recorder.SetQueueDepth("download_design", 3)

	recorder.WorkerStarted()
	recorder.WorkerStarted()
	recorder.WorkerFinished()

	recorder.SetAdapterHealth(" Chat-Feed ", "Healthy")
	recorder.SetAdapterHealth("forum", "Degraded")

	recorder.ObserveIngestAttempt("chat-feed")
	recorder.ObserveIngestAttempt("chat-feed")
	recorder.ObserveIngestFailure("forum")

	recorder.ObserveDuplicateCandidate("HASH")
	recorder.ObserveDuplicateCandidate("title_designer")
	recorder.ObserveFamilyAssigned()

	var buf bytes.Buffer
	recorder.Write(&buf)

	expected := `# HELP printarr_http_requests_total Total number of HTTP requests processed by the API
# TYPE printarr_http_requests_total counter
printarr_http_requests_total{method="GET",path="/designs/:id",status="200"} 2
printarr_http_requests_total{method="POST",path="/designs",status="201"} 1
# HELP printarr_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds
# TYPE printarr_http_request_duration_seconds_sum counter
printarr_http_request_duration_seconds_sum{method="GET",path="/designs/:id",status="200"} 0.200000
printarr_http_request_duration_seconds_sum{method="POST",path="/designs",status="201"} 1.000000
# HELP printarr_http_request_duration_seconds_count Total number of observations for request durations
# TYPE printarr_http_request_duration_seconds_count counter
printarr_http_request_duration_seconds_count{method="GET",path="/designs/:id",status="200"} 2
printarr_http_request_duration_seconds_count{method="POST",path="/designs",status="201"} 1
# HELP printarr_job_events_total Job lifecycle events by kind and outcome
# TYPE printarr_job_events_total counter
printarr_job_events_total{kind="download_design",event="failed"} 1
printarr_job_events_total{kind="download_design",event="succeeded"} 2
# HELP printarr_queue_depth Current number of queued jobs by kind
# TYPE printarr_queue_depth gauge
printarr_queue_depth{kind="download_design"} 3
# HELP printarr_active_workers Current number of workers holding a claimed job
# TYPE printarr_active_workers gauge
printarr_active_workers 1
# HELP printarr_adapter_health Health status reported by source adapters (1=ok,0=disabled,-1=degraded)
# TYPE printarr_adapter_health gauge
printarr_adapter_health{adapter="chat-feed",status="healthy"} 1.000000
printarr_adapter_health{adapter="forum",status="degraded"} -1.000000
# HELP printarr_ingest_attempts_total Total adapter scan attempts by adapter
# TYPE printarr_ingest_attempts_total counter
printarr_ingest_attempts_total{adapter="chat-feed"} 2
printarr_ingest_attempts_total{adapter="forum"} 0
# HELP printarr_ingest_failures_total Total adapter scan failures by adapter
# TYPE printarr_ingest_failures_total counter
printarr_ingest_failures_total{adapter="chat-feed"} 0
printarr_ingest_failures_total{adapter="forum"} 1
# HELP printarr_duplicate_candidates_total Duplicate candidates created by match type
# TYPE printarr_duplicate_candidates_total counter
printarr_duplicate_candidates_total{match_type="hash"} 1
printarr_duplicate_candidates_total{match_type="title_designer"} 1
# HELP printarr_family_assignments_total Designs assigned to a family
# TYPE printarr_family_assignments_total counter
printarr_family_assignments_total 1`

	if diff := compareLines(buf.String(), expected); diff != "" {
		t.Fatalf("unexpected write output:\n%s", diff)
	}

	res := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(res, httptest.NewRequest("GET", "/metrics", nil))

	if contentType := res.Result().Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("unexpected content type: %s", contentType)
	}

	if diff := compareLines(res.Body.String(), expected); diff != "" {
		t.Fatalf("unexpected handler output:\n%s", diff)
	}
}

func compareLines(actual, expected string) string {
	actualLines := strings.Split(strings.TrimSpace(actual), "\n")
	expectedLines := strings.Split(strings.TrimSpace(expected), "\n")
	if len(actualLines) != len(expectedLines) {
		return formatDiff(actualLines, expectedLines)
	}
	for i := range actualLines {
		if actualLines[i] != expectedLines[i] {
			return formatDiff(actualLines, expectedLines)
		}
	}
	return ""
}

func formatDiff(actual, expected []string) string {
	var b strings.Builder
	b.WriteString("expected\n")
	for _, line := range expected {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("got\n")
	for _, line := range actual {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
