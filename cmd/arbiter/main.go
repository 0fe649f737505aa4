package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"k8s.io/klog/v2"

	"arbiter/pkg/agentmodel"
	"arbiter/pkg/budget"
	"arbiter/pkg/resource"
	"arbiter/pkg/round"
	"arbiter/pkg/utility"
)

func main() {
	fmt.Println("================================================================================")
	fmt.Println("  ARBITER - Multi-Resource Priority Economy Simulator")
	fmt.Println("  WARNING: This is a demonstration scenario runner, not a production service.")
	fmt.Println("================================================================================")
	fmt.Println()

	klog.InitFlags(nil)
	if vFlag := flag.Lookup("v"); vFlag != nil {
		_ = vFlag.Value.Set("2")
	}

	var (
		rounds         int
		capacity       int64
		openingBalance int64
		earningRate    float64
		outPath        string
	)
	flag.IntVar(&rounds, "rounds", 200, "Number of rounds to simulate")
	flag.Int64Var(&capacity, "capacity", 500, "CPU pool capacity")
	flag.Int64Var(&openingBalance, "balance", 100, "Opening currency balance per agent")
	flag.Float64Var(&earningRate, "earning-rate", 0.05, "Currency earned per allocated unit")
	flag.StringVar(&outPath, "out", "results.csv", "Path to write the longitudinal CSV export")
	flag.Parse()

	pool := resource.NewPool(map[resource.Kind]int64{resource.CPU: capacity})
	collab := newCollaborator()
	driver := round.NewDriver(pool, collab, klogObserver{}, earningRate)
	driver.ConfigureBudget(budget.NewCostTable(budget.ServiceCost{ServiceType: round.ServiceTypeExecute, Credits: 5}), noopBackend{})

	for _, preset := range presets {
		for i := 1; i <= 3; i++ {
			id := fmt.Sprintf("%s-%d", preset.name, i)
			agent, err := buildAgent(id, preset, openingBalance)
			if err != nil {
				klog.Fatalf("failed to build agent %s: %v", id, err)
			}
			collab.assign(id, preset)
			driver.Register(agent)
		}
	}

	klog.InfoS("Starting scenario", "rounds", rounds, "capacity", capacity, "agents", len(driver.Agents()))
	driver.StartRuntime()

	optimalRounds := 0
	for i := 0; i < rounds; i++ {
		_, verification := driver.RunRound()
		if verification.Optimal {
			optimalRounds++
		}
		for _, agent := range driver.Agents() {
			history := driver.History(agent.ID)
			if len(history) > 0 {
				collab.record(history[len(history)-1])
			}
		}
	}

	driver.StopRuntime()
	optimalRate := float64(optimalRounds) / float64(rounds)
	klog.InfoS("Scenario complete", "rounds", rounds, "pareto_optimal_rate", optimalRate)

	positiveCumulative := 0
	for _, agent := range driver.Agents() {
		h := driver.History(agent.ID)
		if len(h) == 0 {
			continue
		}
		if h[len(h)-1].CumulativeUtility > 0 {
			positiveCumulative++
		}
	}
	klog.InfoS("Cumulative utility summary", "agents_with_positive_cumulative_utility", positiveCumulative, "total_agents", len(driver.Agents()))

	f, err := os.Create(outPath)
	if err != nil {
		klog.Fatalf("failed to create output file %s: %v", outPath, err)
	}
	defer f.Close()

	if err := driver.WriteCSV(f); err != nil {
		klog.Fatalf("failed to write CSV export: %v", err)
	}
	klog.InfoS("Wrote longitudinal export", "path", outPath)
}

func buildAgent(id string, preset strategyPreset, openingBalance int64) (*agentmodel.Agent, error) {
	prefs, err := utility.NewCobbDouglas(map[resource.Kind]float64{resource.CPU: 1})
	if err != nil {
		return nil, err
	}
	min := map[resource.Kind]int64{resource.CPU: 10}
	ideal := map[resource.Kind]int64{resource.CPU: 80}
	return agentmodel.New(id, id, prefs, decimal.NewFromInt(openingBalance), min, ideal)
}
