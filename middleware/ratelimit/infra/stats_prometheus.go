package infra

import (
	"context"

	"roleplay-realm-gateway/middleware/ratelimit/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusStatsStore expõe as decisões como contadores Prometheus.
//
// Labels: action ("ip" para o guard por IP) e result (allowed|denied). A chave
// nunca vira label.
type PrometheusStatsStore struct {
	decisions *prometheus.CounterVec
	remaining *prometheus.HistogramVec
}

func NewPrometheusStatsStore(reg prometheus.Registerer) *PrometheusStatsStore {
	s := &PrometheusStatsStore{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ratelimit_decisions_total",
			Help: "Rate limit decisions by action and result",
		}, []string{"action", "result"}),
		remaining: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ratelimit_remaining_quota",
			Help:    "Remaining quota reported on accepted action requests",
			Buckets: []float64{0, 1, 2, 3, 5, 10, 25, 50},
		}, []string{"action"}),
	}
	if reg != nil {
		reg.MustRegister(s.decisions, s.remaining)
	}
	return s
}

func (s *PrometheusStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	action := ev.Action
	if action == "" {
		action = "ip"
	}
	result := "denied"
	if ev.Allowed {
		result = "allowed"
		if ev.Action != "" {
			s.remaining.WithLabelValues(action).Observe(float64(ev.Remaining))
		}
	}
	s.decisions.WithLabelValues(action, result).Inc()
	return nil
}

// Decisions expõe o CounterVec para testes e dashboards locais.
func (s *PrometheusStatsStore) Decisions() *prometheus.CounterVec { return s.decisions }
