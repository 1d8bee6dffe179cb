package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SyncMetrics records outcomes of the dual-write and stream-merge layer.
// A nil receiver or unregistered instance is a no-op, so repositories can be
// constructed without metrics in tests.
type SyncMetrics struct {
	writeDuration *prometheus.HistogramVec
	writeSuccess  *prometheus.CounterVec
	writeFailure  *prometheus.CounterVec
	mergeApplied  prometheus.Counter
	mergeSkipped  prometheus.Counter
	presence      *prometheus.CounterVec
	pendingQueued prometheus.Counter
}

// NewSyncMetrics registers the sync metrics on the provided registerer.
func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	if reg == nil {
		return &SyncMetrics{}
	}
	writeDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dual_write_duration_seconds",
		Help:    "Duration of dual-write operations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity", "op"})
	writeSuccess := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dual_write_success",
		Help: "Dual-write operations where both stores accepted the write.",
	}, []string{"entity", "op"})
	writeFailure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dual_write_failure",
		Help: "Dual-write operations that reported failure, by failing side.",
	}, []string{"entity", "op", "side"})
	mergeApplied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_merge_items_applied",
		Help: "Remote items absorbed into the local store by the stream merger.",
	})
	mergeSkipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stream_merge_items_skipped",
		Help: "Remote items skipped because the local revision was newer.",
	})
	presence := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_transitions",
		Help: "Presence status transitions.",
	}, []string{"status"})
	pendingQueued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pending_writes_queued",
		Help: "Remote writes queued for later flush after a remote failure.",
	})
	reg.MustRegister(writeDuration, writeSuccess, writeFailure, mergeApplied, mergeSkipped, presence, pendingQueued)
	return &SyncMetrics{
		writeDuration: writeDuration,
		writeSuccess:  writeSuccess,
		writeFailure:  writeFailure,
		mergeApplied:  mergeApplied,
		mergeSkipped:  mergeSkipped,
		presence:      presence,
		pendingQueued: pendingQueued,
	}
}

// ObserveWrite records the duration of one dual-write operation.
func (m *SyncMetrics) ObserveWrite(entity, op string, duration time.Duration) {
	if m == nil || m.writeDuration == nil {
		return
	}
	m.writeDuration.WithLabelValues(normalizeLabel(entity), normalizeLabel(op)).Observe(duration.Seconds())
}

// IncWriteSuccess increments the success counter for the given operation.
func (m *SyncMetrics) IncWriteSuccess(entity, op string) {
	if m == nil || m.writeSuccess == nil {
		return
	}
	m.writeSuccess.WithLabelValues(normalizeLabel(entity), normalizeLabel(op)).Inc()
}

// IncWriteFailure increments the failure counter. side is "local" or "remote".
func (m *SyncMetrics) IncWriteFailure(entity, op, side string) {
	if m == nil || m.writeFailure == nil {
		return
	}
	m.writeFailure.WithLabelValues(normalizeLabel(entity), normalizeLabel(op), normalizeLabel(side)).Inc()
}

// AddMergeApplied counts remote items written into the local mirror.
func (m *SyncMetrics) AddMergeApplied(n int) {
	if m == nil || m.mergeApplied == nil || n <= 0 {
		return
	}
	m.mergeApplied.Add(float64(n))
}

// AddMergeSkipped counts remote items the merger declined to apply.
func (m *SyncMetrics) AddMergeSkipped(n int) {
	if m == nil || m.mergeSkipped == nil || n <= 0 {
		return
	}
	m.mergeSkipped.Add(float64(n))
}

// IncPresence records a presence transition ("online"/"offline").
func (m *SyncMetrics) IncPresence(status string) {
	if m == nil || m.presence == nil {
		return
	}
	m.presence.WithLabelValues(normalizeLabel(status)).Inc()
}

// IncPendingQueued records a remote write deferred to the pending queue.
func (m *SyncMetrics) IncPendingQueued() {
	if m == nil || m.pendingQueued == nil {
		return
	}
	m.pendingQueued.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
