// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	ReleasesInserted   prometheus.Counter
	ReleasesUpdated    prometheus.Counter
	ReleasesIgnored    prometheus.Counter
	PublishesSucceeded prometheus.Counter
	PublishesFailed    prometheus.Counter
	IRCReconnects      prometheus.Counter
	DeadlockRetries    prometheus.Counter
	WebItemsFetched    prometheus.Counter

	// Histograms (seconds)
	SyncDuration    prometheus.Observer
	PublishDuration prometheus.Observer

	// Gauges
	PendingDepthGauge prometheus.Gauge
	IRCConnectedGauge prometheus.Gauge // 1=connected,0=disconnected
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		ReleasesInserted = promauto.NewCounter(prometheus.CounterOpts{Name: "prebot_releases_inserted_total", Help: "Number of new releases inserted"})
		ReleasesUpdated = promauto.NewCounter(prometheus.CounterOpts{Name: "prebot_releases_updated_total", Help: "Number of releases merge-updated"})
		ReleasesIgnored = promauto.NewCounter(prometheus.CounterOpts{Name: "prebot_releases_ignored_total", Help: "Number of syncs skipped with zero field changes"})
		PublishesSucceeded = promauto.NewCounter(prometheus.CounterOpts{Name: "prebot_publishes_succeeded_total", Help: "Number of releases announced to all channels"})
		PublishesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "prebot_publishes_failed_total", Help: "Number of announce attempts that failed on a channel write"})
		IRCReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "prebot_irc_reconnects_total", Help: "Number of forced IRC reconnect cycles"})
		DeadlockRetries = promauto.NewCounter(prometheus.CounterOpts{Name: "prebot_db_deadlock_retries_total", Help: "Number of statement retries after transient database conflicts"})
		WebItemsFetched = promauto.NewCounter(prometheus.CounterOpts{Name: "prebot_web_items_fetched_total", Help: "Number of release items decoded from web feeds"})
		SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "prebot_sync_duration_seconds", Help: "Release sync duration seconds", Buckets: prometheus.DefBuckets})
		PublishDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "prebot_publish_duration_seconds", Help: "Publish cycle duration seconds", Buckets: prometheus.DefBuckets})
		PendingDepthGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "prebot_pending_depth", Help: "Current number of releases waiting for publication"})
		IRCConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "prebot_irc_connected", Help: "IRC connection up=1 down=0"})
	})
}

// SetPendingDepth records the current publication backlog.
func SetPendingDepth(n int) {
	if PendingDepthGauge != nil {
		PendingDepthGauge.Set(float64(n))
	}
}

// SetIRCConnected sets the connection gauge to 1 if up else 0.
func SetIRCConnected(up bool) {
	if IRCConnectedGauge != nil {
		if up {
			IRCConnectedGauge.Set(1)
		} else {
			IRCConnectedGauge.Set(0)
		}
	}
}

// IncCounter bumps a counter if metrics are initialized.
func IncCounter(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncDeadlockRetries bumps the deadlock retry counter if metrics are initialized.
func IncDeadlockRetries() {
	if DeadlockRetries != nil {
		DeadlockRetries.Inc()
	}
}

// IncIRCReconnects bumps the reconnect counter if metrics are initialized.
func IncIRCReconnects() {
	if IRCReconnects != nil {
		IRCReconnects.Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
