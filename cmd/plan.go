package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/viklund/heatopt/config"
	"github.com/viklund/heatopt/core/comfort"
	"github.com/viklund/heatopt/core/model"
	"github.com/viklund/heatopt/core/planner"
	"github.com/viklund/heatopt/core/thermal"
	"github.com/viklund/heatopt/infra/pricing"
	"github.com/viklund/heatopt/infra/store"
)

var (
	planZone    string
	planTemp    float64
	planOutdoor float64
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute and print a plan for one zone without actuating",
	RunE:  runPlan,
}

func init() {
	planCmd.Flags().StringVar(&planZone, "zone", "", "zone id to plan")
	planCmd.Flags().Float64Var(&planTemp, "temp", 20, "current indoor temperature")
	planCmd.Flags().Float64Var(&planOutdoor, "outdoor", 0, "outdoor temperature")
	_ = planCmd.MarkFlagRequired("zone")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	var zc model.ZoneConfig
	found := false
	for _, z := range cfg.Zones {
		if z.ID == planZone {
			zc = z
			found = true
		}
	}
	if !found {
		return fmt.Errorf("zone %q not in configuration", planZone)
	}

	params := thermal.DefaultParameters()
	if db, err := store.NewSQLiteStore(cfg.Store.Path); err == nil {
		if p, ok, err := db.LoadParameters(zc.ID); err == nil && ok {
			params = p
		}
		_ = db.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	step := time.Duration(cfg.Planner.StepMinutes) * time.Minute
	start := time.Now().Truncate(step)
	curve, err := pricing.NewClient(cfg.Price).FetchPrices(ctx, start, start.Add(time.Duration(cfg.Planner.HorizonHours)*time.Hour))
	if err != nil {
		return fmt.Errorf("fetch prices: %w", err)
	}

	steps := cfg.Planner.HorizonHours * 60 / cfg.Planner.StepMinutes
	outdoor := make([]float64, steps)
	for i := range outdoor {
		outdoor[i] = planOutdoor
	}
	plan, err := planner.New(cfg.Planner).Plan(planner.Request{
		Zone:        zc,
		Model:       thermal.New(params),
		Policy:      comfort.NewPolicy(zc.ComfortWindows),
		Prices:      curve,
		Outdoor:     outdoor,
		Start:       start,
		CurrentTemp: planTemp,
	})
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}

	fmt.Printf("plan %s for zone %s, cost %.3f", plan.ID, plan.ZoneID, plan.TotalCost)
	if len(plan.Flags) > 0 {
		fmt.Printf(", flags %v", plan.Flags)
	}
	fmt.Println()
	for _, st := range plan.Steps {
		fmt.Printf("%s  level %.2f  predicted %.1f°C  cost %.4f\n",
			st.Timestamp.Format("15:04"), float64(st.Level), st.PredictedTemp, st.CostEstimate)
	}
	for _, r := range plan.Relaxed {
		fmt.Printf("relaxed %s..%s by %.1f°C (min %.1f°C)\n",
			r.From.Format("15:04"), r.To.Format("15:04"), r.ByDegC, r.MinTemp)
	}
	return nil
}
