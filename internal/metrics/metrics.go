package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SessionsStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_sessions_started_total",
		Help: "Exam sessions whose clock was started",
	})

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_submissions_total",
			Help: "Attempts persisted, by trigger and pass outcome",
		},
		[]string{"trigger", "passed"},
	)

	DuplicateSubmissions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_submissions_rejected_total",
		Help: "Submit triggers rejected because a submission was running or done",
	})

	PersistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "exam_attempt_persist_failures_total",
		Help: "Failed attempt record writes",
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "exam_sessions_active",
		Help: "Sessions currently held by the registry",
	})

	StatsQueueProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_attempt_stats_processed_total",
			Help: "Attempt stats jobs handled by the worker, by result",
		},
		[]string{"result"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			SessionsStarted,
			Submissions,
			DuplicateSubmissions,
			PersistFailures,
			ActiveSessions,
			StatsQueueProcessed,
		)
	})
}

// ObserveSubmission counts one persisted attempt.
func ObserveSubmission(auto, passed bool) {
	trigger := "manual"
	if auto {
		trigger = "timeout"
	}
	Submissions.WithLabelValues(trigger, strconv.FormatBool(passed)).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(c.Writer.Status()),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
