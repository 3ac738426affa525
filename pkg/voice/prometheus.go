package voice

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voiceturn"

// PromMetrics exports turn metrics to Prometheus.
type PromMetrics struct {
	registry *prometheus.Registry

	stageLatency *prometheus.HistogramVec
	turnsTotal   *prometheus.CounterVec
	sentences    *prometheus.CounterVec
}

// NewPromMetrics creates the turn collectors on a fresh registry that also
// carries the Go runtime and process collectors.
func NewPromMetrics() *PromMetrics {
	p := &PromMetrics{
		registry: prometheus.NewRegistry(),
		stageLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "turn_stage_latency_seconds",
				Help:      "Latency from utterance acceptance to each turn stage in seconds",
				Buckets:   []float64{.1, .25, .5, 1, 1.5, 2, 3, 5, 10, 30},
			},
			[]string{"stage"}, // stage: transcript, first_token, first_audio, total
		),
		turnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Total number of utterances by turn outcome",
			},
			[]string{"outcome"}, // outcome: success, empty_input, error, busy
		),
		sentences: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sentences_total",
				Help:      "Total number of reply sentences by synthesis result",
			},
			[]string{"result"}, // result: spoken, skipped
		),
	}
	p.registry.MustRegister(
		p.stageLatency,
		p.turnsTotal,
		p.sentences,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

// Attach subscribes p to every turn and busy rejection recorded by m.
func (p *PromMetrics) Attach(m *MetricsCollector) {
	m.OnTurn(p.Observe)
	m.OnBusy(func() { p.turnsTotal.WithLabelValues(string(OutcomeBusy)).Inc() })
}

// Observe records one finished turn.
func (p *PromMetrics) Observe(m Metrics) {
	p.turnsTotal.WithLabelValues(string(m.Outcome)).Inc()

	observe := func(stage string, seconds float64) {
		if seconds > 0 {
			p.stageLatency.WithLabelValues(stage).Observe(seconds)
		}
	}
	observe("transcript", m.TranscriptLatency.Seconds())
	observe("first_token", m.FirstTokenLatency.Seconds())
	observe("first_audio", m.FirstAudioLatency.Seconds())
	observe("total", m.TotalLatency.Seconds())

	p.sentences.WithLabelValues("spoken").Add(float64(m.Sentences - m.Skipped))
	p.sentences.WithLabelValues("skipped").Add(float64(m.Skipped))
}

// Registry returns the underlying registry.
func (p *PromMetrics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler returns an http.Handler for the metrics endpoint.
func (p *PromMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
