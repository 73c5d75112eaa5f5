package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the voice service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Transcription metrics
	Transcriptions        *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec
	CacheLookups          *prometheus.CounterVec

	// Stream metrics
	ActiveStreams     prometheus.Gauge
	StreamChunks      prometheus.Counter
	UtterancesFlushed prometheus.Counter

	// Dataset metrics
	DatasetSamples      *prometheus.CounterVec
	DatasetAudioSeconds prometheus.Counter
}

// New creates the metrics on a private registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepro_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicepro_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),

		Transcriptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepro_transcriptions_total",
			Help: "Transcription model calls by source and outcome",
		}, []string{"source", "outcome"}),
		TranscriptionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicepro_transcription_duration_seconds",
			Help:    "Wall time of transcription model calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"source"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepro_transcript_cache_lookups_total",
			Help: "Transcript cache lookups by result",
		}, []string{"result"}),

		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Name: "voicepro_active_streams",
			Help: "Current number of streaming transcription sessions",
		}),
		StreamChunks: f.NewCounter(prometheus.CounterOpts{
			Name: "voicepro_stream_chunks_total",
			Help: "Audio chunks received on streaming sessions",
		}),
		UtterancesFlushed: f.NewCounter(prometheus.CounterOpts{
			Name: "voicepro_utterances_flushed_total",
			Help: "Utterances handed to the transcription model from streams",
		}),

		DatasetSamples: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voicepro_dataset_samples_total",
			Help: "Dataset collections by outcome",
		}, []string{"outcome"}),
		DatasetAudioSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "voicepro_dataset_audio_seconds_total",
			Help: "Seconds of audio added to the dataset",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveTranscription(source string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.Transcriptions.WithLabelValues(source, outcome(err)).Inc()
	m.TranscriptionDuration.WithLabelValues(source).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
	} else {
		m.CacheLookups.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) StreamOpened() {
	if m != nil {
		m.ActiveStreams.Inc()
	}
}

func (m *Metrics) StreamClosed() {
	if m != nil {
		m.ActiveStreams.Dec()
	}
}

func (m *Metrics) ObserveChunk() {
	if m != nil {
		m.StreamChunks.Inc()
	}
}

func (m *Metrics) ObserveFlush() {
	if m != nil {
		m.UtterancesFlushed.Inc()
	}
}

func (m *Metrics) ObserveSample(seconds float64, err error) {
	if m == nil {
		return
	}
	m.DatasetSamples.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.DatasetAudioSeconds.Add(seconds)
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
