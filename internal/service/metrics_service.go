package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/paud-admission-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation for the admission
// pipeline.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	admissionsTotal *prometheus.CounterVec
	seatReserved    prometheus.Counter
	seatRejected    prometheus.Counter
	waitlistSize    *prometheus.GaugeVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	admissionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "admissions_total",
		Help: "Total admitted participants by priority tier",
	}, []string{"tier"})

	seatReserved := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seat_reservations_total",
		Help: "Total successful seat reservations",
	})

	seatRejected := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "seat_reservations_rejected_total",
		Help: "Total seat reservations rejected because the class was full",
	})

	waitlistSize := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "waitlist_size",
		Help: "Current number of waiting participants per institution",
	}, []string{"institution_id"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, admissionsTotal, seatReserved, seatRejected, waitlistSize, cacheHits, cacheMisses, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		admissionsTotal: admissionsTotal,
		seatReserved:    seatReserved,
		seatRejected:    seatRejected,
		waitlistSize:    waitlistSize,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// AdmissionRecorded counts an admission in the given tier.
func (m *MetricsService) AdmissionRecorded(tier models.PriorityTier) {
	if m == nil {
		return
	}
	m.admissionsTotal.WithLabelValues(fmt.Sprintf("%d", tier)).Inc()
}

// SeatReserved counts a successful seat reservation.
func (m *MetricsService) SeatReserved() {
	if m == nil {
		return
	}
	m.seatReserved.Inc()
}

// SeatReservationRejected counts a reservation refused by a full class.
func (m *MetricsService) SeatReservationRejected() {
	if m == nil {
		return
	}
	m.seatRejected.Inc()
}

// SetWaitlistSize records the current waitlist length of an institution.
func (m *MetricsService) SetWaitlistSize(institutionID string, size int) {
	if m == nil {
		return
	}
	m.waitlistSize.WithLabelValues(institutionID).Set(float64(size))
}

// CacheHit counts a snapshot cache hit.
func (m *MetricsService) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss counts a snapshot cache miss.
func (m *MetricsService) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}
