package metrics

import (
	"context"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	coremetrics "github.com/viklund/heatopt/core/metrics"
	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/infra/logger"
)

// InfluxSink writes zone telemetry and planning events to InfluxDB using
// the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	base := strings.TrimSuffix(cfg.InfluxURL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.InfluxToken,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink when the health check fails, so a down telemetry store never
// blocks zone control.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordPlan writes one point per committed plan.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	p := influxdb2.NewPointWithMeasurement("heating_plan").
		AddTag("zone_id", ev.ZoneID).
		AddTag("trigger", ev.Trigger).
		AddField("cost", ev.Cost).
		AddField("relaxed_windows", ev.RelaxedWindows).
		AddField("compute_ms", float64(ev.ComputeTime.Milliseconds())).
		SetTime(time.Now())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordZoneSample writes one telemetry point.
func (s *InfluxSink) RecordZoneSample(z coremetrics.ZoneSample) error {
	p := influxdb2.NewPointWithMeasurement("heating_zone").
		AddTag("zone_id", z.ZoneID).
		AddField("temperature", z.Temp).
		AddField("outdoor", z.Outdoor).
		AddField("level", float64(z.Level)).
		AddField("price", z.Price).
		AddField("model_confidence", z.ModelConfidence).
		AddField("model_mae", z.ModelMAE).
		AddField("observations", z.Observations).
		SetTime(z.Timestamp)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordSavings writes the settled period record.
func (s *InfluxSink) RecordSavings(r model.SavingsRecord) error {
	p := influxdb2.NewPointWithMeasurement("heating_savings").
		AddTag("zone_id", r.ZoneID).
		AddField("realized_cost", r.RealizedCost).
		AddField("baseline_cost", r.BaselineCost).
		AddField("saved", r.SavedCost()).
		AddField("saved_pct", r.SavedPercent()).
		AddField("correction", r.Correction).
		SetTime(r.PeriodEnd)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// Close shuts down the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
