// Package metrics provides Prometheus metrics for the scoutsync engine.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// defaultLatencyBuckets are millisecond buckets for remote, run and HTTP
// latencies.
var defaultLatencyBuckets = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000} //nolint:gochecknoglobals // shared default

// Manager manages all Prometheus metrics for the sync engine.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Pipeline Metrics - one orchestrator run is push followed by pull
	syncRuns          *prometheus.CounterVec
	syncRunDuration   prometheus.Histogram
	syncState         prometheus.Gauge
	lastSyncUnix      prometheus.Gauge
	triggers          *prometheus.CounterVec
	triggersCoalesced *prometheus.CounterVec

	// Trigger Queue Metrics
	triggerQueueSize     prometheus.Gauge
	triggerQueueCapacity prometheus.Gauge

	// Push Metrics - delivery of pending scouting records
	pushBatches    *prometheus.CounterVec
	pushRetries    prometheus.Counter
	recordsPushed  prometheus.Counter
	orphansHealed  prometheus.Counter
	pendingRecords prometheus.Gauge
	remoteLatency  *prometheus.HistogramVec

	// Pull Metrics - roster and schedule reconciliation
	pullMerges      *prometheus.CounterVec
	upstreamChanges *prometheus.CounterVec
	pullErrors      *prometheus.CounterVec

	// Local Data Quality Metrics
	recordsCaptured   prometheus.Counter
	normalizeDropped  prometheus.Counter
	migrationsApplied prometheus.Counter

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Enhanced Error Metrics - Detailed error tracking
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// global pairs the process-wide manager with the registry it writes to.
type global struct {
	manager  *Manager
	registry *prometheus.Registry
}

var current atomic.Pointer[global] //nolint:gochecknoglobals // process-wide metrics

func init() { //nolint:gochecknoinits // metrics are usable before Configure
	Configure()
}

// Configure replaces the process-wide manager with one built from opts on a
// fresh registry. Call it once at startup, before handlers capture
// GetRegistry.
func Configure(opts ...Option) *Manager {
	registry := prometheus.NewRegistry()
	m := NewManager(append(opts, WithPrometheusRegistry(registry))...)
	current.Store(&global{manager: m, registry: registry})
	return m
}

// active returns the process-wide manager, or nil when recording is off.
func active() *Manager {
	if m := current.Load().manager; m.enabled {
		return m
	}
	return nil
}

// RefreshInterval is how often the process gauges should be sampled.
func RefreshInterval() time.Duration {
	return current.Load().manager.refreshInterval
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scoutsync",
		subsystem:        "sync",
		histogramBuckets: defaultLatencyBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.NewRegistry(),
	}

	// Apply all options
	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// name applies the configured metric prefix.
func (m *Manager) name(base string) string {
	if m.metricPrefix == "" {
		return base
	}
	return m.metricPrefix + "_" + base
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.customLabels)

	m.syncRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("runs_total"),
		Help:        "Total number of orchestrator pipeline runs by outcome",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.syncRunDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("run_duration_milliseconds"),
		Help:        "Duration of a full push-then-pull pipeline run in milliseconds",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	})

	m.syncState = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("state"),
		Help:        "Current orchestrator state (0 idle, 1 pushing, 2 pulling, 3 error)",
		ConstLabels: labels,
	})

	m.lastSyncUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("last_success_unixtime"),
		Help:        "Unix time of the last pipeline run that completed without error",
		ConstLabels: labels,
	})

	m.triggers = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("triggers_total"),
		Help:        "Total number of sync triggers by source",
		ConstLabels: labels,
	}, []string{"source"})

	m.triggersCoalesced = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("triggers_coalesced_total"),
		Help:        "Triggers dropped because a run was active or the trigger queue was full",
		ConstLabels: labels,
	}, []string{"source"})

	m.triggerQueueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("trigger_queue_size"),
		Help:        "Current number of queued triggers",
		ConstLabels: labels,
	})

	m.triggerQueueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("trigger_queue_capacity"),
		Help:        "Maximum capacity of the trigger queue",
		ConstLabels: labels,
	})

	m.pushBatches = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("push_batches_total"),
		Help:        "Total number of upsert batches by outcome",
		ConstLabels: labels,
	}, []string{"outcome"})

	m.pushRetries = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("push_retries_total"),
		Help:        "Total number of upsert retry attempts",
		ConstLabels: labels,
	})

	m.recordsPushed = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("records_pushed_total"),
		Help:        "Total number of scouting records confirmed by the remote store",
		ConstLabels: labels,
	})

	m.orphansHealed = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("pending_orphans_removed_total"),
		Help:        "Pending ids dropped because their record no longer exists locally",
		ConstLabels: labels,
	})

	m.pendingRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("pending_records"),
		Help:        "Number of record ids waiting for remote confirmation",
		ConstLabels: labels,
	})

	m.remoteLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("remote_latency_milliseconds"),
		Help:        "Remote store call latency in milliseconds by operation",
		Buckets:     m.histogramBuckets,
		ConstLabels: labels,
	}, []string{"op"})

	m.pullMerges = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("merge_decisions_total"),
		Help:        "Reconciler decisions per collection and winning side",
		ConstLabels: labels,
	}, []string{"collection", "winner"})

	m.upstreamChanges = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("upstream_changes_total"),
		Help:        "Locally authoritative entities pushed upstream after a merge",
		ConstLabels: labels,
	}, []string{"collection"})

	m.pullErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("pull_errors_total"),
		Help:        "Failed pull/merge attempts per collection",
		ConstLabels: labels,
	}, []string{"collection"})

	m.recordsCaptured = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("records_captured_total"),
		Help:        "Scouting records written locally",
		ConstLabels: labels,
	})

	m.normalizeDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("normalize_dropped_total"),
		Help:        "Malformed local records discarded by the normalize pass",
		ConstLabels: labels,
	})

	m.migrationsApplied = auto.NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("migrations_applied_total"),
		Help:        "Local schema migrations applied",
		ConstLabels: labels,
	})

	// HTTP Performance Metrics - admin API
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_requests_total"),
			Help:        "Total number of HTTP requests by endpoint and method",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("http_request_duration_milliseconds"),
			Help:        "HTTP request duration in milliseconds",
			Buckets:     m.histogramBuckets,
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_component_total"),
			Help:        "Total number of errors by component",
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)

	m.errorRateByType = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_type_total"),
			Help:        "Total number of errors by type",
			ConstLabels: labels,
		},
		[]string{"error_type", "severity"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("errors_by_endpoint_total"),
			Help:        "Total number of errors by endpoint",
			ConstLabels: labels,
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.errorLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   m.namespace,
			Subsystem:   m.subsystem,
			Name:        m.name("error_latency_milliseconds"),
			Help:        "Latency of operations that resulted in errors",
			Buckets:     m.histogramBuckets,
			ConstLabels: labels,
		},
		[]string{"component", "error_type"},
	)

	// System Performance Metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_memory_usage_bytes"),
		Help:        "System memory usage in bytes",
		ConstLabels: labels,
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_goroutine_count"),
		Help:        "Number of goroutines",
		ConstLabels: labels,
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name("system_gc_pause_time_milliseconds"),
		Help:        "GC pause time in milliseconds",
		Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		ConstLabels: labels,
	})
}

// Enabled reports whether the manager records observations.
func (m *Manager) Enabled() bool {
	return m.enabled
}

// RefreshInterval returns how often periodic gauges should be refreshed.
func (m *Manager) RefreshInterval() time.Duration {
	return m.refreshInterval
}

// Pipeline Metrics Functions.

// RecordSyncRun records the outcome and duration of one pipeline run.
func RecordSyncRun(outcome string, durationMs float64) {
	m := active()
	if m == nil {
		return
	}
	m.syncRuns.WithLabelValues(outcome).Inc()
	m.syncRunDuration.Observe(durationMs)
	if outcome == "ok" {
		m.lastSyncUnix.Set(float64(time.Now().Unix()))
	}
}

// UpdateSyncState sets the orchestrator state gauge.
func UpdateSyncState(state int) {
	if m := active(); m != nil {
		m.syncState.Set(float64(state))
	}
}

// RecordTrigger increments the trigger counter for source.
func RecordTrigger(source string) {
	if m := active(); m != nil {
		m.triggers.WithLabelValues(source).Inc()
	}
}

// RecordTriggerCoalesced increments the coalesced trigger counter for source.
func RecordTriggerCoalesced(source string) {
	if m := active(); m != nil {
		m.triggersCoalesced.WithLabelValues(source).Inc()
	}
}

// UpdateTriggerQueueSize sets the current trigger queue length.
func UpdateTriggerQueueSize(size int) {
	if m := active(); m != nil {
		m.triggerQueueSize.Set(float64(size))
	}
}

// UpdateTriggerQueueCapacity sets the trigger queue capacity.
func UpdateTriggerQueueCapacity(capacity int) {
	if m := active(); m != nil {
		m.triggerQueueCapacity.Set(float64(capacity))
	}
}

// Push Metrics Functions.

// RecordPushBatch increments the batch counter for outcome (ok, partial, failed).
func RecordPushBatch(outcome string) {
	if m := active(); m != nil {
		m.pushBatches.WithLabelValues(outcome).Inc()
	}
}

// RecordPushRetry increments the retry counter.
func RecordPushRetry() {
	if m := active(); m != nil {
		m.pushRetries.Inc()
	}
}

// RecordRecordsPushed adds n confirmed records.
func RecordRecordsPushed(n int) {
	if m := active(); m != nil {
		m.recordsPushed.Add(float64(n))
	}
}

// RecordOrphansHealed adds n dropped orphan pending ids.
func RecordOrphansHealed(n int) {
	if m := active(); m != nil {
		m.orphansHealed.Add(float64(n))
	}
}

// UpdatePendingRecords sets the pending gauge.
func UpdatePendingRecords(n int) {
	if m := active(); m != nil {
		m.pendingRecords.Set(float64(n))
	}
}

// RecordRemoteLatency records a remote store call latency for op.
func RecordRemoteLatency(op string, latencyMs float64) {
	if m := active(); m != nil {
		m.remoteLatency.WithLabelValues(op).Observe(latencyMs)
	}
}

// Pull Metrics Functions.

// RecordMergeDecision increments the merge decision counter.
func RecordMergeDecision(collection, winner string) {
	if m := active(); m != nil {
		m.pullMerges.WithLabelValues(collection, winner).Inc()
	}
}

// RecordUpstreamChanges adds n upstream changes for collection.
func RecordUpstreamChanges(collection string, n int) {
	if m := active(); m != nil {
		m.upstreamChanges.WithLabelValues(collection).Add(float64(n))
	}
}

// RecordPullError increments the pull error counter for collection.
func RecordPullError(collection string) {
	if m := active(); m != nil {
		m.pullErrors.WithLabelValues(collection).Inc()
	}
}

// Local Data Quality Functions.

// RecordRecordCaptured increments the captured record counter.
func RecordRecordCaptured() {
	if m := active(); m != nil {
		m.recordsCaptured.Inc()
	}
}

// RecordNormalizeDropped adds n dropped malformed records.
func RecordNormalizeDropped(n int) {
	if m := active(); m != nil {
		m.normalizeDropped.Add(float64(n))
	}
}

// RecordMigrationApplied increments the migrations counter.
func RecordMigrationApplied() {
	if m := active(); m != nil {
		m.migrationsApplied.Inc()
	}
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	if m := active(); m != nil {
		m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	}
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	if m := active(); m != nil {
		m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
	}
}

// Enhanced Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	if m := active(); m != nil {
		m.errorRateByComponent.WithLabelValues(component, errorType).Inc()
	}
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	if m := active(); m != nil {
		m.errorRateByType.WithLabelValues(errorType, severity).Inc()
	}
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	if m := active(); m != nil {
		m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
	}
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	if m := active(); m != nil {
		m.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
	}
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	if m := active(); m != nil {
		m.systemMemoryUsage.Set(float64(bytes))
	}
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	if m := active(); m != nil {
		m.systemGoroutineCount.Set(float64(count))
	}
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	if m := active(); m != nil {
		m.systemGCPauseTime.Observe(pauseMs)
	}
}

// GetRegistry returns the registry the process-wide manager writes to.
func GetRegistry() *prometheus.Registry {
	return current.Load().registry
}
