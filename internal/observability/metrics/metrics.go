package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// JobEventLabel identifies a job lifecycle counter by kind and outcome
// (created, started, succeeded, failed, canceled, retried).
type JobEventLabel struct {
	Kind  string
	Event string
}

// Recorder aggregates in-memory metrics counters and gauges for HTTP
// requests, job lifecycle events, queue depth, worker activity, adapter
// (source) health, and dedupe/family detection throughput. It coordinates
// concurrent writers via a RWMutex while exposing thread-safe gauges for
// active worker and queue-depth tracking.
type Recorder struct {
	mu               sync.RWMutex
	requestCount     map[requestLabel]uint64
	requestDuration  map[requestLabel]time.Duration
	jobEvents        map[JobEventLabel]uint64
	queueDepth       map[string]int64
	adapterHealth    map[string]float64
	adapterState     map[string]string
	activeWorkers    atomic.Int64
	ingestAttempts   map[string]uint64
	ingestFailures   map[string]uint64
	dedupeCandidates map[string]uint64
	familyAssigned   uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers
// can immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:     make(map[requestLabel]uint64),
		requestDuration:  make(map[requestLabel]time.Duration),
		jobEvents:        make(map[JobEventLabel]uint64),
		queueDepth:       make(map[string]int64),
		adapterHealth:    make(map[string]float64),
		adapterState:     make(map[string]string),
		ingestAttempts:   make(map[string]uint64),
		ingestFailures:   make(map[string]uint64),
		dedupeCandidates: make(map[string]uint64),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation
// pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// ObserveJobEvent records a job lifecycle transition for the given job kind
// (e.g. "download_design") and event ("created", "started", "succeeded",
// "failed", "canceled", "retried").
func (r *Recorder) ObserveJobEvent(kind, event string) {
	label := JobEventLabel{Kind: normalizeName(kind), Event: normalizeName(event)}
	r.mu.Lock()
	r.jobEvents[label]++
	r.mu.Unlock()
}

// SetQueueDepth records the current number of QUEUED jobs of a given kind,
// used by the stats dashboard's "queue" view.
func (r *Recorder) SetQueueDepth(kind string, depth int64) {
	k := normalizeName(kind)
	r.mu.Lock()
	r.queueDepth[k] = depth
	r.mu.Unlock()
}

// WorkerStarted increments the active-worker gauge when a worker claims a job.
func (r *Recorder) WorkerStarted() {
	r.activeWorkers.Add(1)
}

// WorkerFinished decrements the active-worker gauge, never going negative.
func (r *Recorder) WorkerFinished() {
	r.decrementGauge(&r.activeWorkers)
}

// ActiveWorkers exposes the current gauge of workers processing a claimed job.
func (r *Recorder) ActiveWorkers() int64 {
	return r.activeWorkers.Load()
}

// ObserveIngestAttempt records a source-adapter scan attempt keyed by adapter
// name (e.g. "chat", "clouddrive", "forum", "localfolder", "upload").
func (r *Recorder) ObserveIngestAttempt(adapter string) {
	a := normalizeName(adapter)
	r.mu.Lock()
	r.ingestAttempts[a]++
	r.mu.Unlock()
}

// ObserveIngestFailure records a failed adapter scan keyed by adapter name.
// The caller should also record the attempt separately.
func (r *Recorder) ObserveIngestFailure(adapter string) {
	a := normalizeName(adapter)
	r.mu.Lock()
	r.ingestFailures[a]++
	r.mu.Unlock()
}

// SetAdapterHealth normalizes adapter identifiers, maps status strings to
// numeric health values, and stores both representations for export.
func (r *Recorder) SetAdapterHealth(adapter, status string) {
	normalizedAdapter := normalizeName(adapter)
	normalizedStatus := strings.ToLower(strings.TrimSpace(status))
	value := 0.0
	switch normalizedStatus {
	case "ok", "healthy":
		value = 1
	case "disabled":
		value = 0
	default:
		value = -1
	}
	r.mu.Lock()
	r.adapterHealth[normalizedAdapter] = value
	r.adapterState[normalizedAdapter] = normalizedStatus
	r.mu.Unlock()
}

// ObserveDuplicateCandidate records a DuplicateCandidate insertion keyed by
// match type (HASH, EXTERNAL_ID, TITLE_DESIGNER, FILENAME_SIZE).
func (r *Recorder) ObserveDuplicateCandidate(matchType string) {
	m := normalizeName(matchType)
	r.mu.Lock()
	r.dedupeCandidates[m]++
	r.mu.Unlock()
}

// ObserveFamilyAssigned records a design being added to a family (new or existing).
func (r *Recorder) ObserveFamilyAssigned() {
	r.mu.Lock()
	r.familyAssigned++
	r.mu.Unlock()
}

// IngestCounts returns copies of adapter attempt and failure counters for
// testing and reporting purposes.
func (r *Recorder) IngestCounts() (attempts map[string]uint64, failures map[string]uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attempts = make(map[string]uint64, len(r.ingestAttempts))
	for k, v := range r.ingestAttempts {
		attempts[k] = v
	}
	failures = make(map[string]uint64, len(r.ingestFailures))
	for k, v := range r.ingestFailures {
		failures[k] = v
	}
	return attempts, failures
}

// Reset clears all counters and gauges on the recorder. It is intended for
// test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.jobEvents = make(map[JobEventLabel]uint64)
	r.queueDepth = make(map[string]int64)
	r.adapterHealth = make(map[string]float64)
	r.adapterState = make(map[string]string)
	r.ingestAttempts = make(map[string]uint64)
	r.ingestFailures = make(map[string]uint64)
	r.dedupeCandidates = make(map[string]uint64)
	r.familyAssigned = 0
	r.activeWorkers.Store(0)
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting
// label sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()
	jobLabels := r.sortedJobLabels()
	queueKinds := r.sortedStringKeysInt64(r.queueDepth)
	adapters := r.sortedStringKeysFloat64(r.adapterHealth)
	ingestOps := r.sortedIngestOperations()
	dedupeTypes := r.sortedStringKeysUint64(r.dedupeCandidates)

	fmt.Fprintln(w, "# HELP printarr_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE printarr_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "printarr_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP printarr_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE printarr_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "printarr_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP printarr_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE printarr_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "printarr_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP printarr_job_events_total Job lifecycle events by kind and outcome")
	fmt.Fprintln(w, "# TYPE printarr_job_events_total counter")
	for _, label := range jobLabels {
		count := r.jobEvents[label]
		fmt.Fprintf(w, "printarr_job_events_total{kind=\"%s\",event=\"%s\"} %d\n", label.Kind, label.Event, count)
	}

	fmt.Fprintln(w, "# HELP printarr_queue_depth Current number of queued jobs by kind")
	fmt.Fprintln(w, "# TYPE printarr_queue_depth gauge")
	for _, kind := range queueKinds {
		fmt.Fprintf(w, "printarr_queue_depth{kind=\"%s\"} %d\n", kind, r.queueDepth[kind])
	}

	fmt.Fprintln(w, "# HELP printarr_active_workers Current number of workers holding a claimed job")
	fmt.Fprintln(w, "# TYPE printarr_active_workers gauge")
	fmt.Fprintf(w, "printarr_active_workers %d\n", r.activeWorkers.Load())

	fmt.Fprintln(w, "# HELP printarr_adapter_health Health status reported by source adapters (1=ok,0=disabled,-1=degraded)")
	fmt.Fprintln(w, "# TYPE printarr_adapter_health gauge")
	for _, adapter := range adapters {
		value := r.adapterHealth[adapter]
		status := r.adapterState[adapter]
		fmt.Fprintf(w, "printarr_adapter_health{adapter=\"%s\",status=\"%s\"} %f\n", adapter, status, value)
	}

	fmt.Fprintln(w, "# HELP printarr_ingest_attempts_total Total adapter scan attempts by adapter")
	fmt.Fprintln(w, "# TYPE printarr_ingest_attempts_total counter")
	for _, op := range ingestOps {
		fmt.Fprintf(w, "printarr_ingest_attempts_total{adapter=\"%s\"} %d\n", op, r.ingestAttempts[op])
	}

	fmt.Fprintln(w, "# HELP printarr_ingest_failures_total Total adapter scan failures by adapter")
	fmt.Fprintln(w, "# TYPE printarr_ingest_failures_total counter")
	for _, op := range ingestOps {
		fmt.Fprintf(w, "printarr_ingest_failures_total{adapter=\"%s\"} %d\n", op, r.ingestFailures[op])
	}

	fmt.Fprintln(w, "# HELP printarr_duplicate_candidates_total Duplicate candidates created by match type")
	fmt.Fprintln(w, "# TYPE printarr_duplicate_candidates_total counter")
	for _, matchType := range dedupeTypes {
		fmt.Fprintf(w, "printarr_duplicate_candidates_total{match_type=\"%s\"} %d\n", matchType, r.dedupeCandidates[matchType])
	}

	fmt.Fprintln(w, "# HELP printarr_family_assignments_total Designs assigned to a family")
	fmt.Fprintln(w, "# TYPE printarr_family_assignments_total counter")
	fmt.Fprintf(w, "printarr_family_assignments_total %d\n", r.familyAssigned)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func (r *Recorder) sortedJobLabels() []JobEventLabel {
	labels := make([]JobEventLabel, 0, len(r.jobEvents))
	for label := range r.jobEvents {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].Kind != labels[j].Kind {
			return labels[i].Kind < labels[j].Kind
		}
		return labels[i].Event < labels[j].Event
	})
	return labels
}

func (r *Recorder) sortedStringKeysInt64(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Recorder) sortedStringKeysFloat64(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Recorder) sortedStringKeysUint64(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (r *Recorder) sortedIngestOperations() []string {
	seen := make(map[string]struct{}, len(r.ingestAttempts)+len(r.ingestFailures))
	for op := range r.ingestAttempts {
		seen[op] = struct{}{}
	}
	for op := range r.ingestFailures {
		seen[op] = struct{}{}
	}
	ops := make([]string, 0, len(seen))
	for op := range seen {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	return ops
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 8 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

func (r *Recorder) decrementGauge(gauge *atomic.Int64) {
	for {
		current := gauge.Load()
		if current <= 0 {
			return
		}
		if gauge.CompareAndSwap(current, current-1) {
			return
		}
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// ObserveJobEvent records a job lifecycle transition on the default recorder.
func ObserveJobEvent(kind, event string) {
	defaultRecorder.ObserveJobEvent(kind, event)
}

// SetAdapterHealth updates adapter health for the default recorder.
func SetAdapterHealth(adapter, status string) {
	defaultRecorder.SetAdapterHealth(adapter, status)
}

// ObserveIngestAttempt records an adapter scan attempt on the default recorder.
func ObserveIngestAttempt(adapter string) {
	defaultRecorder.ObserveIngestAttempt(adapter)
}

// ObserveIngestFailure records an adapter scan failure on the default recorder.
func ObserveIngestFailure(adapter string) {
	defaultRecorder.ObserveIngestFailure(adapter)
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
