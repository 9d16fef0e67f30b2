package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/danmuck/v4link/internal/link"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "v4link",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "v4link",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	linkFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "v4link",
			Subsystem: "link",
			Name:      "frames_total",
			Help:      "Frames answered by the link, by command and ack status.",
		},
		[]string{"command", "status"},
	)
	linkBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "v4link",
			Subsystem: "link",
			Name:      "bytes_total",
			Help:      "Framed bytes received and acknowledged.",
		},
		[]string{"direction"},
	)
	linkWords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "v4link",
			Subsystem: "link",
			Name:      "words_registered_total",
			Help:      "Words registered with the VM through Exec.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, linkFrames, linkBytes, linkWords)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

// RecordFrame counts one answered frame.
func RecordFrame(rec link.Record) {
	RegisterMetrics()
	command := rec.Command.String()
	if rec.Outcome == link.OutcomeOverflow {
		command = "none"
	}
	linkFrames.WithLabelValues(command, rec.Status.String()).Inc()
	linkBytes.WithLabelValues("rx").Add(float64(rec.RxBytes))
	linkBytes.WithLabelValues("tx").Add(float64(rec.TxBytes))
	if n := len(rec.Registered); n > 0 {
		linkWords.Add(float64(n))
	}
}

// LinkObserver feeds link records into the link metrics.
func LinkObserver() link.Observer {
	return link.ObserverFunc(RecordFrame)
}

// Observers fans one record out to several observers in order.
type Observers []link.Observer

func (o Observers) Observe(rec link.Record) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(rec)
		}
	}
}
