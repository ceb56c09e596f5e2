// Package app wires configuration, adapters and zone controllers into the
// running optimizer service.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/viklund/heatopt/config"
	"github.com/viklund/heatopt/core/comfort"
	"github.com/viklund/heatopt/core/events"
	coremetrics "github.com/viklund/heatopt/core/metrics"
	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/core/planner"
	corepricing "github.com/viklund/heatopt/core/pricing"
	"github.com/viklund/heatopt/core/savings"
	"github.com/viklund/heatopt/core/thermal"
	"github.com/viklund/heatopt/core/zone"
	"github.com/viklund/heatopt/infra/logger"
	"github.com/viklund/heatopt/infra/metrics"
	"github.com/viklund/heatopt/infra/mqtt"
	"github.com/viklund/heatopt/infra/pricing"
	"github.com/viklund/heatopt/infra/store"
	"github.com/viklund/heatopt/internal/eventbus"
)

// zoneRuntime bundles one controller with its savings accounting state.
type zoneRuntime struct {
	ctrl    *zone.Controller
	tracker *savings.Tracker
	group   *zone.Group

	mu          sync.Mutex
	lastReading model.SensorReading
	hasReading  bool
	startTemp   float64
	startSet    bool
	lastExecAt  time.Time
	executed    []model.PlanStep
	execPrices  []float64
	execOutdoor []float64
}

// alreadyExecuted reports whether the plan step starting at ts has been
// emitted. The startup execute and the first ticker fire can land in the
// same step; its energy must only be accounted once.
func (rt *zoneRuntime) alreadyExecuted(ts time.Time) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return !rt.lastExecAt.IsZero() && !ts.After(rt.lastExecAt)
}

// accrue records an emitted step for the next savings settlement.
func (rt *zoneRuntime) accrue(step model.PlanStep, price, outdoor float64) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.lastExecAt = step.Timestamp
	rt.executed = append(rt.executed, step)
	rt.execPrices = append(rt.execPrices, price)
	rt.execOutdoor = append(rt.execOutdoor, outdoor)
}

// Service orchestrates all zone controllers and adapters.
type Service struct {
	cfg    *config.Config
	log    logger.Logger
	client *mqtt.PahoClient
	sink   coremetrics.MetricsSink
	store  *store.SQLiteStore
	prices *corepricing.CachedSource
	bus    *eventbus.Bus[events.ReplanRequest]

	zones  map[string]*zoneRuntime
	order  []string
	groups map[string]*zone.Group

	mu        sync.Mutex
	outdoor   float64
	outdoorAt time.Time
	curve     model.PriceCurve
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	var sinks []coremetrics.MetricsSink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink(cfg.Metrics)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sinks = append(sinks, metrics.NewInfluxSinkWithFallback(cfg.Metrics))
	}
	var sink coremetrics.MetricsSink = coremetrics.NopSink{}
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = metrics.NewMultiSink(sinks...)
	}

	svc := &Service{
		cfg:    cfg,
		log:    logg,
		sink:   sink,
		store:  db,
		prices: corepricing.NewCachedSource(pricing.NewClient(cfg.Price)),
		bus:    eventbus.New[events.ReplanRequest](16),
		zones:  make(map[string]*zoneRuntime),
		groups: make(map[string]*zone.Group),
	}

	client, err := mqtt.NewPahoClient(cfg.MQTT, svc.onReading, svc.onOutdoor)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mqtt client: %w", err)
	}
	svc.client = client

	step := time.Duration(cfg.Planner.StepMinutes) * time.Minute
	actuator := mqtt.NewActuator(client, step, time.Duration(cfg.Service.AckTimeoutSeconds)*time.Second)

	// Grouped zones share one thermal model, fitted from the members'
	// combined history.
	for _, g := range cfg.Groups {
		params, ok, err := db.LoadParameters(groupKey(g.ID))
		if err != nil {
			svc.closePartial()
			return nil, err
		}
		if !ok {
			params = thermal.DefaultParameters()
		}
		grp, err := zone.NewGroup(g, thermal.New(params))
		if err != nil {
			svc.closePartial()
			return nil, err
		}
		svc.groups[g.ID] = grp
	}

	pl := planner.New(cfg.Planner)
	now := time.Now()
	for _, zc := range cfg.Zones {
		therm, err := svc.modelFor(zc, db)
		if err != nil {
			svc.closePartial()
			return nil, err
		}
		policy := comfort.NewPolicy(zc.ComfortWindows)
		ctrl, err := zone.New(zc, therm, policy, pl, actuator, logger.New("zone"))
		if err != nil {
			svc.closePartial()
			return nil, err
		}
		retention := time.Duration(zc.RetentionDays) * 24 * time.Hour
		if samples, err := db.Samples(zc.ID, now.Add(-retention)); err == nil {
			ctrl.SeedHistory(samples)
		}
		svc.zones[zc.ID] = &zoneRuntime{
			ctrl:    ctrl,
			tracker: savings.NewTracker(zc, policy, db),
			group:   svc.groupOf(zc.ID),
		}
		svc.order = append(svc.order, zc.ID)
	}
	return svc, nil
}

func groupKey(id string) string { return "group:" + id }

func (s *Service) groupOf(zoneID string) *zone.Group {
	for _, g := range s.groups {
		if g.Contains(zoneID) {
			return g
		}
	}
	return nil
}

func (s *Service) modelFor(zc model.ZoneConfig, db *store.SQLiteStore) (*thermal.Model, error) {
	if g := s.groupOf(zc.ID); g != nil {
		return g.Model(), nil
	}
	params, ok, err := db.LoadParameters(zc.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		params = thermal.DefaultParameters()
	}
	return thermal.New(params), nil
}

func (s *Service) closePartial() {
	if s.client != nil {
		s.client.Disconnect()
	}
	_ = s.store.Close()
}

// onReading handles a zone temperature sample from the sensor boundary.
func (s *Service) onReading(r model.SensorReading) {
	rt, ok := s.zones[r.ZoneID]
	if !ok {
		s.log.Debugf("reading for unknown zone %s dropped", r.ZoneID)
		return
	}
	s.mu.Lock()
	outdoor := s.outdoor
	s.mu.Unlock()

	rt.mu.Lock()
	rt.lastReading = r
	rt.hasReading = true
	if !rt.startSet {
		rt.startTemp = r.Temp
		rt.startSet = true
	}
	rt.mu.Unlock()

	level := model.HeatingLevel(0)
	if plan, ok := rt.ctrl.Plan(); ok {
		if step, ok := plan.StepAt(r.Timestamp); ok {
			level = step.Level
		}
	}
	if err := s.store.AddSample(r.ZoneID, model.ThermalState{
		Timestamp:   r.Timestamp,
		IndoorTemp:  r.Temp,
		OutdoorTemp: outdoor,
		Level:       level,
	}); err != nil {
		s.log.Errorf("zone %s: persist sample: %v", r.ZoneID, err)
	}
	if rt.ctrl.Observe(r, outdoor) {
		s.bus.Publish(events.ReplanRequest{ZoneID: r.ZoneID, Trigger: zone.TriggerDrift})
	}
}

// onOutdoor handles the shared outdoor temperature sample.
func (s *Service) onOutdoor(temp float64, ts time.Time) {
	s.mu.Lock()
	s.outdoor = temp
	s.outdoorAt = ts
	s.mu.Unlock()
}

// Run starts the service loop and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	s.refreshPrices(ctx)
	s.replanAll(ctx, zone.TriggerCadence)
	s.executeAll(time.Now())

	execTick := time.NewTicker(s.cfg.Service.ExecuteInterval())
	priceTick := time.NewTicker(time.Duration(s.cfg.Service.PriceRefreshMinutes) * time.Minute)
	replanTick := time.NewTicker(time.Duration(s.cfg.Planner.ReplanIntervalMinutes) * time.Minute)
	telemetryTick := time.NewTicker(time.Duration(s.cfg.Service.TelemetryIntervalSeconds) * time.Second)
	learnTick := time.NewTicker(time.Duration(s.cfg.Service.LearnIntervalHours) * time.Hour)
	settleTick := time.NewTicker(time.Hour)
	defer func() {
		execTick.Stop()
		priceTick.Stop()
		replanTick.Stop()
		telemetryTick.Stop()
		learnTick.Stop()
		settleTick.Stop()
	}()

	requests := s.bus.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case req, ok := <-requests:
			if !ok {
				return nil
			}
			if req.ZoneID == "" {
				s.replanAll(ctx, req.Trigger)
			} else {
				s.replanZone(ctx, req.ZoneID, req.Trigger)
			}
		case now := <-execTick.C:
			s.pruneOverrides(now)
			s.executeAll(now)
		case <-priceTick.C:
			s.refreshPrices(ctx)
		case <-replanTick.C:
			s.replanAll(ctx, zone.TriggerCadence)
		case now := <-telemetryTick.C:
			s.pushTelemetry(now)
		case now := <-learnTick.C:
			s.learn(now)
		case now := <-settleTick.C:
			if now.Hour() == s.cfg.Service.SettleHour {
				s.settle()
			}
		}
	}
}

// refreshPrices fetches the curve for the coming horizon. A cache hit after
// an upstream failure still updates the working curve; the resulting plans
// carry the degradation flag through the curve's staleness marker.
func (s *Service) refreshPrices(ctx context.Context) {
	step := time.Duration(s.cfg.Planner.StepMinutes) * time.Minute
	start := time.Now().Truncate(step)
	end := start.Add(time.Duration(s.cfg.Planner.HorizonHours) * time.Hour)
	curve, err := s.prices.FetchPrices(ctx, start, end)
	if err != nil {
		s.log.Warnf("price refresh: %v", err)
	}
	if len(curve.Points) == 0 {
		return
	}
	s.mu.Lock()
	s.curve = curve
	s.mu.Unlock()
	if err == nil {
		s.bus.Publish(events.ReplanRequest{Trigger: zone.TriggerPriceUpdate})
	}
}

func (s *Service) replanAll(ctx context.Context, trig zone.Trigger) {
	for _, id := range s.order {
		s.replanZone(ctx, id, trig)
	}
}

func (s *Service) replanZone(ctx context.Context, zoneID string, trig zone.Trigger) {
	rt, ok := s.zones[zoneID]
	if !ok {
		s.log.Warnf("replan request for unknown zone %s", zoneID)
		return
	}
	rt.mu.Lock()
	reading := rt.lastReading
	hasReading := rt.hasReading
	rt.mu.Unlock()
	if !hasReading {
		s.log.Debugf("zone %s: no sensor reading yet, replan skipped", zoneID)
		return
	}

	now := time.Now()
	s.mu.Lock()
	outdoor := s.outdoor
	curve := s.curve
	s.mu.Unlock()

	steps := s.cfg.Planner.HorizonHours * 60 / s.cfg.Planner.StepMinutes
	outdoorFc := make([]float64, steps)
	for i := range outdoorFc {
		outdoorFc[i] = outdoor
	}
	snap := zone.Snapshot{
		Now:          now,
		Reading:      reading,
		Outdoor:      outdoorFc,
		Prices:       curve,
		SensorMaxAge: s.cfg.Service.SensorMaxAge(),
	}

	started := time.Now()
	plan, err := rt.ctrl.Replan(ctx, snap, trig)
	if err != nil {
		return
	}
	if len(plan.Steps) > 0 {
		if serr := s.sink.RecordPlan(coremetrics.PlanEvent{
			ZoneID:         zoneID,
			PlanID:         plan.ID.String(),
			Trigger:        string(trig),
			Cost:           plan.TotalCost,
			RelaxedWindows: len(plan.Relaxed),
			Flags:          plan.Flags,
			ComputeTime:    time.Since(started),
		}); serr != nil {
			s.log.Debugf("record plan: %v", serr)
		}
	}
	if pending, ok := rt.ctrl.TakePending(); ok {
		s.replanZone(ctx, zoneID, pending)
	}
}

// pruneOverrides drops expired boost and vacation overrides; an expiry
// changes the effective policy and forces a replan.
func (s *Service) pruneOverrides(now time.Time) {
	for _, id := range s.order {
		if s.zones[id].ctrl.Policy().Prune(now) {
			s.bus.Publish(events.ReplanRequest{ZoneID: id, Trigger: zone.TriggerPolicy})
		}
	}
}

// executeAll emits the due plan step of every zone and accrues the executed
// steps for savings settlement.
func (s *Service) executeAll(now time.Time) {
	s.mu.Lock()
	curve := s.curve
	outdoor := s.outdoor
	s.mu.Unlock()
	for _, id := range s.order {
		rt := s.zones[id]
		plan, hasPlan := rt.ctrl.Plan()
		if !hasPlan {
			continue
		}
		step, due := plan.StepAt(now)
		if !due || rt.alreadyExecuted(step.Timestamp) {
			continue
		}
		if err := rt.ctrl.Execute(now); err != nil {
			s.log.Errorf("zone %s: execute: %v", id, err)
			continue
		}
		price, _ := curve.At(now)
		rt.accrue(step, price, outdoor)
	}
}

// pushTelemetry records one sample per zone on the metrics sinks.
func (s *Service) pushTelemetry(now time.Time) {
	s.mu.Lock()
	curve := s.curve
	outdoor := s.outdoor
	s.mu.Unlock()
	for _, id := range s.order {
		rt := s.zones[id]
		rt.mu.Lock()
		reading := rt.lastReading
		hasReading := rt.hasReading
		rt.mu.Unlock()
		if !hasReading {
			continue
		}
		level := model.HeatingLevel(0)
		if plan, ok := rt.ctrl.Plan(); ok {
			if step, ok := plan.StepAt(now); ok {
				level = step.Level
			}
		}
		price, _ := curve.At(now)
		params := rt.ctrl.ThermalModel().Parameters()
		mae := 0.0
		if v, ok := rt.ctrl.ThermalModel().Accuracy(rt.ctrl.History().Samples()); ok {
			mae = v
		}
		if err := s.sink.RecordZoneSample(coremetrics.ZoneSample{
			ZoneID:          id,
			Timestamp:       now,
			Temp:            reading.Temp,
			Outdoor:         outdoor,
			Level:           level,
			Price:           price,
			ModelConfidence: params.Confidence,
			ModelMAE:        mae,
			Observations:    params.Observations,
		}); err != nil {
			s.log.Debugf("record sample: %v", err)
		}
	}
}

// learn refits thermal models from retained history and persists the
// resulting parameters. Grouped zones are fitted once from their combined
// member history.
func (s *Service) learn(now time.Time) {
	fitted := make(map[string]bool)
	for _, id := range s.order {
		rt := s.zones[id]
		retention := time.Duration(rt.ctrl.Config().RetentionDays) * 24 * time.Hour
		if err := s.store.PruneSamples(id, now.Add(-retention)); err != nil {
			s.log.Debugf("zone %s: prune samples: %v", id, err)
		}
		if rt.group != nil {
			if fitted[rt.group.ID()] {
				continue
			}
			fitted[rt.group.ID()] = true
			var samples []model.ThermalState
			for _, m := range rt.group.Members() {
				if member, ok := s.zones[m]; ok {
					samples = append(samples, member.ctrl.History().Samples()...)
				}
			}
			if err := rt.group.Model().Fit(samples, now); err != nil {
				s.log.Debugf("group %s: fit degraded: %v", rt.group.ID(), err)
			}
			if err := s.store.SaveParameters(groupKey(rt.group.ID()), rt.group.Model().Parameters()); err != nil {
				s.log.Errorf("group %s: persist parameters: %v", rt.group.ID(), err)
			}
			continue
		}
		_ = rt.ctrl.Learn(now)
		if err := s.store.SaveParameters(id, rt.ctrl.ThermalModel().Parameters()); err != nil {
			s.log.Errorf("zone %s: persist parameters: %v", id, err)
		}
	}
}

// settle closes the accrued execution window of every zone and appends the
// savings records.
func (s *Service) settle() {
	for _, id := range s.order {
		rt := s.zones[id]
		rt.mu.Lock()
		executed := rt.executed
		prices := rt.execPrices
		outdoor := rt.execOutdoor
		startTemp := rt.startTemp
		rt.executed = nil
		rt.execPrices = nil
		rt.execOutdoor = nil
		rt.startSet = false
		rt.mu.Unlock()
		if len(executed) == 0 {
			continue
		}
		curve := model.PriceCurve{Step: s.cfg.Service.ExecuteInterval()}
		for i, st := range executed {
			curve.Points = append(curve.Points, model.PricePoint{Timestamp: st.Timestamp, Price: prices[i]})
		}
		rec, err := rt.tracker.Settle(executed, curve, rt.ctrl.ThermalModel(), startTemp, outdoor)
		if err != nil {
			s.log.Errorf("zone %s: settle: %v", id, err)
			continue
		}
		if err := s.sink.RecordSavings(rec); err != nil {
			s.log.Debugf("record savings: %v", err)
		}
		s.log.Infof("zone %s: settled %s..%s saved %.3f (%.1f%%)",
			id, rec.PeriodStart.Format(time.RFC3339), rec.PeriodEnd.Format(time.RFC3339),
			rec.SavedCost(), rec.SavedPercent())
	}
}

// Boost raises the zone's lower comfort bound for a limited time and forces
// a replan.
func (s *Service) Boost(zoneID string, delta float64, d time.Duration) error {
	rt, ok := s.zones[zoneID]
	if !ok {
		return fmt.Errorf("unknown zone %s", zoneID)
	}
	rt.ctrl.Policy().Boost(time.Now(), delta, d)
	s.bus.Publish(events.ReplanRequest{ZoneID: zoneID, Trigger: zone.TriggerPolicy})
	return nil
}

// Vacation clamps all zones to a reduced band for the date range.
func (s *Service) Vacation(from, until time.Time, min, max float64) {
	for _, id := range s.order {
		s.zones[id].ctrl.Policy().Vacation(from, until, comfort.Bounds{Min: min, Max: max})
	}
	s.bus.Publish(events.ReplanRequest{Trigger: zone.TriggerPolicy})
}

// Savings aggregates the zone's ledger over [start, end).
func (s *Service) Savings(zoneID string, start, end time.Time) (model.SavingsRecord, error) {
	rt, ok := s.zones[zoneID]
	if !ok {
		return model.SavingsRecord{}, fmt.Errorf("unknown zone %s", zoneID)
	}
	return rt.tracker.Totals(start, end)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	s.bus.Close()
	if s.client != nil {
		s.client.Disconnect()
	}
	var err error
	if s.store != nil {
		err = s.store.Close()
	}
	if closer, ok := s.sink.(interface{ Close() }); ok {
		closer.Close()
	}
	return err
}
