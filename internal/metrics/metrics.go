// Package metrics exposes the Prometheus instruments shared by the api and worker.
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"faceattend/internal/face"
)

// Metrics groups the counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	verifications  *prometheus.CounterVec
	marks          *prometheus.CounterVec
	enrollments    *prometheus.CounterVec
	events         *prometheus.CounterVec
	extractSeconds *prometheus.HistogramVec
}

// New registers all instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "verifications_total",
			Help:      "Face verifications by outcome.",
		}, []string{"outcome"}),
		marks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "attendance_marks_total",
			Help:      "Attendance marks by result.",
		}, []string{"result"}),
		enrollments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "enrollments_total",
			Help:      "Enrollment attempts by result.",
		}, []string{"result"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "faceattend",
			Name:      "queue_events_total",
			Help:      "Queue events handled by type and status.",
		}, []string{"type", "status"}),
		extractSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "faceattend",
			Name:      "extract_duration_seconds",
			Help:      "Embedding extraction latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"status"}),
	}
}

func (m *Metrics) Verification(outcome string) {
	if m != nil {
		m.verifications.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) Mark(result string) {
	if m != nil {
		m.marks.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Enrollment(result string) {
	if m != nil {
		m.enrollments.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Event(typ, status string) {
	if m != nil {
		m.events.WithLabelValues(typ, status).Inc()
	}
}

// InstrumentExtractor times every extraction made through e.
func (m *Metrics) InstrumentExtractor(e face.Extractor) face.Extractor {
	if m == nil {
		return e
	}
	return face.ExtractorFunc(func(ctx context.Context, image []byte) (face.Embedding, error) {
		start := time.Now()
		emb, err := e.Extract(ctx, image)
		status := "ok"
		switch {
		case errors.Is(err, face.ErrNoFace):
			status = "no_face"
		case err != nil:
			status = "error"
		}
		m.extractSeconds.WithLabelValues(status).Observe(time.Since(start).Seconds())
		return emb, err
	})
}
