package metrics

import (
	coremetrics "github.com/viklund/heatopt/core/metrics"
	"github.com/viklund/heatopt/core/model"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records planning activity and zone telemetry in Prometheus
// metrics.
type PromSink struct {
	plans      *prometheus.CounterVec
	relaxed    *prometheus.CounterVec
	planCost   *prometheus.HistogramVec
	computeDur *prometheus.HistogramVec
	zoneTemp   *prometheus.GaugeVec
	zoneLevel  *prometheus.GaugeVec
	spotPrice  *prometheus.GaugeVec
	confidence *prometheus.GaugeVec
	modelMAE   *prometheus.GaugeVec
	savings    *prometheus.CounterVec
}

// NewPromSink registers heating metrics on the default Prometheus
// registerer. The HTTP server is started separately.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heating_plans_total",
			Help: "Planning cycles completed, by zone and trigger",
		}, []string{"zone_id", "trigger"}),
		relaxed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heating_plan_relaxed_total",
			Help: "Plans committed with relaxed comfort bounds",
		}, []string{"zone_id"}),
		planCost: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "heating_plan_cost",
			Help:    "Predicted energy cost of committed plans",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"zone_id"}),
		computeDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "heating_plan_compute_seconds",
			Help:    "Planner computation time",
			Buckets: prometheus.DefBuckets,
		}, []string{"zone_id"}),
		zoneTemp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heating_zone_temperature_celsius",
			Help: "Last measured indoor temperature",
		}, []string{"zone_id"}),
		zoneLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heating_zone_level",
			Help: "Heating level currently commanded, 0 to 1",
		}, []string{"zone_id"}),
		spotPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heating_spot_price",
			Help: "Spot price in effect for the zone",
		}, []string{"zone_id"}),
		confidence: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heating_model_confidence",
			Help: "Thermal model fit confidence, 0 to 1",
		}, []string{"zone_id"}),
		modelMAE: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "heating_model_mae_celsius",
			Help: "Thermal model one-step mean absolute prediction error",
		}, []string{"zone_id"}),
		savings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "heating_savings_total",
			Help: "Accumulated savings versus the thermostatic baseline",
		}, []string{"zone_id"}),
	}
	for _, c := range []prometheus.Collector{
		s.plans, s.relaxed, s.planCost, s.computeDur,
		s.zoneTemp, s.zoneLevel, s.spotPrice, s.confidence, s.modelMAE, s.savings,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return s, nil
}

// RecordPlan increments plan counters and observes cost and compute time.
func (s *PromSink) RecordPlan(ev coremetrics.PlanEvent) error {
	s.plans.WithLabelValues(ev.ZoneID, ev.Trigger).Inc()
	s.planCost.WithLabelValues(ev.ZoneID).Observe(ev.Cost)
	s.computeDur.WithLabelValues(ev.ZoneID).Observe(ev.ComputeTime.Seconds())
	for _, f := range ev.Flags {
		if f == model.FlagRelaxedBounds {
			s.relaxed.WithLabelValues(ev.ZoneID).Inc()
		}
	}
	return nil
}

// RecordZoneSample updates the per-zone telemetry gauges.
func (s *PromSink) RecordZoneSample(z coremetrics.ZoneSample) error {
	s.zoneTemp.WithLabelValues(z.ZoneID).Set(z.Temp)
	s.zoneLevel.WithLabelValues(z.ZoneID).Set(float64(z.Level))
	s.spotPrice.WithLabelValues(z.ZoneID).Set(z.Price)
	s.confidence.WithLabelValues(z.ZoneID).Set(z.ModelConfidence)
	s.modelMAE.WithLabelValues(z.ZoneID).Set(z.ModelMAE)
	return nil
}

// RecordSavings accumulates the saved cost of a settled period. Negative
// deltas (the optimizer lost against the baseline) are not subtracted, the
// counter only grows.
func (s *PromSink) RecordSavings(r model.SavingsRecord) error {
	if d := r.SavedCost(); d > 0 {
		s.savings.WithLabelValues(r.ZoneID).Add(d)
	}
	return nil
}
