package files

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Thumbnail sources reported by Metrics.
const (
	ThumbSourceStock     = "stock"
	ThumbSourceSidecar   = "sidecar"
	ThumbSourceGenerated = "generated"
)

// Metrics records orchestrator activity. A nil *Metrics records nothing.
type Metrics struct {
	operations   *prometheus.CounterVec
	lockWait     *prometheus.HistogramVec
	lockTimeouts *prometheus.CounterVec
	thumbnails   *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamfiles_operations_total",
				Help: "File operations by operation and result",
			},
			[]string{"op", "result"},
		),
		lockWait: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "teamfiles_lock_wait_seconds",
				Help:    "Time spent acquiring the critical section",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"op"},
		),
		lockTimeouts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamfiles_lock_timeouts_total",
				Help: "Critical section acquisitions that timed out",
			},
			[]string{"op"},
		),
		thumbnails: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "teamfiles_thumbnails_total",
				Help: "Thumbnails served by source",
			},
			[]string{"source"},
		),
	}
}

func (m *Metrics) observeOp(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, resultLabel(err)).Inc()
}

func (m *Metrics) observeLock(op string, wait time.Duration, err error) {
	if m == nil {
		return
	}
	m.lockWait.WithLabelValues(op).Observe(wait.Seconds())
	if errors.Is(err, ErrLockAcquisitionTimeout) {
		m.lockTimeouts.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) observeThumb(source string) {
	if m == nil {
		return
	}
	m.thumbnails.WithLabelValues(source).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrForbidden):
		return "denied"
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNotAFile),
		errors.Is(err, ErrInvalidPathFormat), errors.Is(err, ErrInvalidPath),
		errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrDestinationExists),
		errors.Is(err, ErrTeamNotFound), errors.Is(err, ErrChannelPathNotFound),
		errors.Is(err, ErrChannelNotFound):
		return "rejected"
	default:
		return "error"
	}
}
