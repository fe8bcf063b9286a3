package main

import (
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the process registry. Round observations come from the game
// loop after the world lock is released; request observations are sampled
// per the performance monitor config so hot endpoints stay cheap.
type Metrics struct {
	registry *prometheus.Registry

	roundDuration prometheus.Histogram
	playerCount   prometheus.Gauge
	foodCount     prometheus.Gauge
	roundsTotal   prometheus.Counter

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.SummaryVec

	sampleEnabled bool
	sampleRate    float64
	sampleMu      sync.Mutex
	sampleRng     *rand.Rand
}

func NewMetrics(cfg PerformanceConfig) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		roundDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "snake_round_duration_seconds",
			Help:    "Wall time spent resolving one round under the world lock.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
		playerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snake_players_in_game",
			Help: "Live in-game sessions after the latest round.",
		}),
		foodCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "snake_food_on_map",
			Help: "Food items on the map after the latest round.",
		}),
		roundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snake_rounds_total",
			Help: "Rounds resolved since start.",
		}),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snake_http_requests_total",
			Help: "HTTP requests by endpoint and status.",
		}, []string{"endpoint", "status"}),
		requestDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       "snake_http_request_duration_seconds",
			Help:       "Sampled request durations by endpoint.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			MaxAge:     time.Duration(max(cfg.WindowSeconds, 1)) * time.Second,
		}, []string{"endpoint"}),
		sampleEnabled: cfg.Enabled,
		sampleRate:    cfg.SampleRate,
		sampleRng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	reg.MustRegister(m.roundDuration, m.playerCount, m.foodCount, m.roundsTotal,
		m.requestsTotal, m.requestDuration)
	return m
}

// ObserveRound records one resolved round. Safe from any goroutine.
func (m *Metrics) ObserveRound(d time.Duration, players, foods int) {
	m.roundDuration.Observe(d.Seconds())
	m.playerCount.Set(float64(players))
	m.foodCount.Set(float64(foods))
	m.roundsTotal.Inc()
}

// ObserveRequest counts the request and, when the sampler fires, records its
// duration in the windowed summary.
func (m *Metrics) ObserveRequest(endpoint string, status int, d time.Duration) {
	m.requestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	if !m.sampleEnabled {
		return
	}
	if m.sampleRate < 1 {
		m.sampleMu.Lock()
		miss := m.sampleRng.Float64() >= m.sampleRate
		m.sampleMu.Unlock()
		if miss {
			return
		}
	}
	m.requestDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// Handler serves the registry in Prometheus text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
