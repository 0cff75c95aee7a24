package monitoring

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
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	EnrollmentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "educube_enrollments_total",
			Help: "Total number of course enrollments",
		},
	)

	ProgressUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "educube_progress_updates_total",
			Help: "Progress mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	CoursesCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "educube_courses_completed_total",
			Help: "Total number of courses marked complete",
		},
	)

	VersionConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "educube_enrollment_version_conflicts_total",
			Help: "Optimistic concurrency conflicts on enrollment writes",
		},
	)

	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "educube_uploads_total",
			Help: "Uploaded files by storage destination",
		},
		[]string{"storage"},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			EnrollmentsTotal,
			ProgressUpdates,
			CoursesCompleted,
			VersionConflicts,
			UploadsTotal,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		RequestCounter.WithLabelValues(
			c.Request.Method,
			endpoint,
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			endpoint,
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
