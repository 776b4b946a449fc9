package server

import (
	"net/http"
	"strconv"

	"github.com/andig/ngenic/entity"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type valuer interface {
	Value() (float64, bool)
	Unit() string
}

// Metrics exports entity state as Prometheus gauges. It is an integration host
// so series follow the entity lifecycle.
type Metrics struct {
	registry    *prometheus.Registry
	value       *prometheus.GaugeVec
	target      *prometheus.GaugeVec
	available   *prometheus.GaugeVec
	unavailable *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		value: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ngenic",
			Name:      "entity_value",
			Help:      "Current entity value.",
		}, []string{"entity", "name", "unit"}),
		target: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ngenic",
			Name:      "climate_target_temperature",
			Help:      "Target temperature of a climate entity.",
		}, []string{"entity", "name"}),
		available: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "ngenic",
			Name:      "entity_available",
			Help:      "Entity availability (1 available, 0 unavailable).",
		}, []string{"entity", "name"}),
		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ngenic",
			Name:      "entity_unavailable_total",
			Help:      "Number of times an entity became unavailable after a failed update.",
		}, []string{"entity", "name"}),
	}

	m.registry.MustRegister(m.value, m.target, m.available, m.unavailable)

	return m
}

// Handler serves the metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Add(entities ...entity.Entity) error {
	for _, e := range entities {
		m.Notify(e)
	}
	return nil
}

func (m *Metrics) Remove(entities ...entity.Entity) {
	for _, e := range entities {
		labels := prometheus.Labels{"entity": e.UniqueID()}
		m.value.DeletePartialMatch(labels)
		m.target.DeletePartialMatch(labels)
		m.available.DeletePartialMatch(labels)
		m.unavailable.DeletePartialMatch(labels)
	}
}

func (m *Metrics) Notify(e entity.Entity) {
	uid, name := e.UniqueID(), e.Name()

	if !e.Available() {
		m.available.WithLabelValues(uid, name).Set(0)
		m.unavailable.WithLabelValues(uid, name).Inc()
		return
	}
	m.available.WithLabelValues(uid, name).Set(1)

	switch e := e.(type) {
	case *entity.Climate:
		if v, ok := e.CurrentTemperature(); ok {
			m.value.WithLabelValues(uid, name, e.Unit()).Set(v)
		}
		if v, ok := e.TargetTemperature(); ok {
			m.target.WithLabelValues(uid, name).Set(v)
		}

	case valuer:
		if v, ok := e.Value(); ok {
			m.value.WithLabelValues(uid, name, e.Unit()).Set(v)
		}

	default:
		if v, err := strconv.ParseFloat(e.State(), 64); err == nil {
			m.value.WithLabelValues(uid, name, "").Set(v)
		}
	}
}
