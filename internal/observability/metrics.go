package observability

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// Metrics is the process-wide metric registry, exposed in Prometheus text
// format. All recording methods are nil-safe so callers never have to guard
// on whether metrics are enabled.
type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	ingestRuns      *CounterVec
	ingestDocuments *Counter
	graphWrites     *CounterVec
	runErrors       *CounterVec
	runsReaped      *Counter
	activeRuns      *Gauge

	migrationsApplied *Counter
	schemasRegistered *Counter
	authEvents        *CounterVec

	storeUp *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	v := strings.TrimSpace(os.Getenv("METRICS_ENABLED"))
	if v == "" {
		return false
	}
	return strings.EqualFold(v, "true") || v == "1" || strings.EqualFold(v, "yes")
}

func Current() *Metrics {
	return instance
}

func Init() *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = &Metrics{
			apiRequests: NewCounterVec("kgb_api_requests_total", "Total API requests by method/route/status.", []string{"method", "route", "status"}),
			apiLatency: NewHistogramVec(
				"kgb_api_request_duration_seconds",
				"API request latency in seconds by method/route/status.",
				[]string{"method", "route", "status"},
				[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			),
			apiInflight:       NewGauge("kgb_api_inflight_requests", "In-flight API requests."),
			ingestRuns:        NewCounterVec("kgb_ingest_runs_total", "Ingestion runs by terminal status.", []string{"status"}),
			ingestDocuments:   NewCounter("kgb_ingest_documents_total", "Documents processed across all ingestion runs."),
			graphWrites:       NewCounterVec("kgb_graph_writes_total", "Graph upserts by kind and outcome.", []string{"kind", "op"}),
			runErrors:         NewCounterVec("kgb_run_errors_total", "Run errors by stage.", []string{"stage"}),
			runsReaped:        NewCounter("kgb_runs_reaped_total", "Stuck runs reconciled to failed by the reaper."),
			activeRuns:        NewGauge("kgb_active_runs", "Runs currently in the running state."),
			migrationsApplied: NewCounter("kgb_migrations_applied_total", "Versioned migrations applied since process start."),
			schemasRegistered: NewCounter("kgb_schemas_registered_total", "Schema registrations accepted."),
			authEvents:        NewCounterVec("kgb_auth_events_total", "Auth events by type and outcome.", []string{"event_type", "success"}),
			storeUp:           NewGauge("kgb_store_up", "Backing graph store reachability (1 = reachable)."),
		}
	})
	return instance
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveIngestRun(status string, documents int) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.ingestRuns.Inc(status)
	m.ingestDocuments.Add(float64(documents))
}

func (m *Metrics) IncGraphWrite(kind, op string) {
	if m == nil {
		return
	}
	m.graphWrites.Inc(kind, op)
}

func (m *Metrics) AddGraphWrites(kind, op string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.graphWrites.Add(float64(n), kind, op)
}

func (m *Metrics) AddRunErrors(stage string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.runErrors.Add(float64(n), stage)
}

func (m *Metrics) AddRunsReaped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.runsReaped.Add(float64(n))
}

func (m *Metrics) SetActiveRuns(n int) {
	if m == nil {
		return
	}
	m.activeRuns.Set(float64(n))
}

func (m *Metrics) IncMigrationsApplied() {
	if m == nil {
		return
	}
	m.migrationsApplied.Inc()
}

func (m *Metrics) IncSchemasRegistered() {
	if m == nil {
		return
	}
	m.schemasRegistered.Inc()
}

func (m *Metrics) IncAuthEvent(eventType string, success bool) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.authEvents.Inc(eventType, fmt.Sprintf("%t", success))
}

func (m *Metrics) SetStoreUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.storeUp.Set(1)
	} else {
		m.storeUp.Set(0)
	}
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	writers := []interface{ WritePrometheus(io.Writer) error }{
		m.apiRequests,
		m.apiLatency,
		m.apiInflight,
		m.ingestRuns,
		m.ingestDocuments,
		m.graphWrites,
		m.runErrors,
		m.runsReaped,
		m.activeRuns,
		m.migrationsApplied,
		m.schemasRegistered,
		m.authEvents,
		m.storeUp,
	}
	for _, metric := range writers {
		if err := metric.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}
