package metrics

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
)

// Metrics holds the Prometheus collectors for the resolver and the alarm lifecycle.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SourceLookupsTotal     *prometheus.CounterVec
	ResolverFallbacksTotal prometheus.Counter

	AlarmsScheduledTotal prometheus.Counter
	AlarmsUpdatedTotal   prometheus.Counter
	AlarmsCancelledTotal prometheus.Counter
	AlarmsFiredTotal     prometheus.Counter
	AlarmsSweptTotal     prometheus.Counter
	AlarmsRejectedTotal  *prometheus.CounterVec

	DBConnectionsOpen  prometheus.Gauge
	DBConnectionsInUse prometheus.Gauge

	collectorStarted atomic.Bool
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pendler_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pendler_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		SourceLookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pendler_source_lookups_total",
			Help: "Upstream lookups by source, operation and outcome",
		}, []string{"source", "operation", "outcome"}),
		ResolverFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pendler_resolver_fallbacks_total",
			Help: "Connection lookups that moved on to a lower priority source",
		}),
		AlarmsScheduledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pendler_alarms_scheduled_total",
			Help: "Alarms scheduled",
		}),
		AlarmsUpdatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pendler_alarms_updated_total",
			Help: "Alarms edited in place",
		}),
		AlarmsCancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pendler_alarms_cancelled_total",
			Help: "Alarms cancelled by the user",
		}),
		AlarmsFiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pendler_alarms_fired_total",
			Help: "Alarms delivered",
		}),
		AlarmsSweptTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pendler_alarms_swept_total",
			Help: "Elapsed alarm records removed by the sweep",
		}),
		AlarmsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pendler_alarms_rejected_total",
			Help: "Alarm requests rejected, by error kind",
		}, []string{"kind"}),
		DBConnectionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pendler_db_connections_open",
			Help: "Number of open database connections",
		}),
		DBConnectionsInUse: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pendler_db_connections_in_use",
			Help: "Number of database connections currently in use",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SourceLookupsTotal,
		m.ResolverFallbacksTotal,
		m.AlarmsScheduledTotal,
		m.AlarmsUpdatedTotal,
		m.AlarmsCancelledTotal,
		m.AlarmsFiredTotal,
		m.AlarmsSweptTotal,
		m.AlarmsRejectedTotal,
		m.DBConnectionsOpen,
		m.DBConnectionsInUse,
	)

	return m
}

func (m *Metrics) SourceLookup(source string, operation string, outcome string) {
	if m == nil {
		return
	}
	m.SourceLookupsTotal.WithLabelValues(source, operation, outcome).Inc()
}

func (m *Metrics) Fallback() {
	if m == nil {
		return
	}
	m.ResolverFallbacksTotal.Inc()
}

func (m *Metrics) AlarmScheduled() {
	if m == nil {
		return
	}
	m.AlarmsScheduledTotal.Inc()
}

func (m *Metrics) AlarmUpdated() {
	if m == nil {
		return
	}
	m.AlarmsUpdatedTotal.Inc()
}

func (m *Metrics) AlarmCancelled() {
	if m == nil {
		return
	}
	m.AlarmsCancelledTotal.Inc()
}

func (m *Metrics) AlarmFired() {
	if m == nil {
		return
	}
	m.AlarmsFiredTotal.Inc()
}

func (m *Metrics) AlarmsSwept(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.AlarmsSweptTotal.Add(float64(count))
}

func (m *Metrics) AlarmRejected(kind string) {
	if m == nil {
		return
	}
	m.AlarmsRejectedTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) HTTPRequest(method string, path string, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// StartDBStatsCollector samples the connection pool every interval until Shutdown.
// Only the first call starts a collector.
func (m *Metrics) StartDBStatsCollector(db *sql.DB, interval time.Duration) {
	if m == nil || db == nil {
		return
	}

	if !m.collectorStarted.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	m.wg.Add(1)
	m.cancel = cancel

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Msg("DB stats collector crashed")
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats := db.Stats()
				m.DBConnectionsOpen.Set(float64(stats.OpenConnections))
				m.DBConnectionsInUse.Set(float64(stats.InUse))
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Metrics) Shutdown() {
	if m == nil {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}
