package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remembrance-oracle/oracle-core/internal/lifecycle"
)

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Inspect or run the lifecycle engine",
}

var lifecycleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a full improve/optimize/evolve cycle",
	RunE:  runLifecycleRun,
}

var lifecycleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show lifecycle running state, history, and recommendations",
	RunE:  runLifecycleStatus,
}

func init() {
	lifecycleCmd.AddCommand(lifecycleRunCmd, lifecycleStatusCmd)
}

func runLifecycleRun(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	report, err := o.cycle.RunCycle(ctx, "manual")
	if err != nil {
		return fmt.Errorf("lifecycle run: %w", err)
	}

	return printResult(os.Stdout, report, func() {
		fmt.Println(report.Summary)
		printPhase := func(label string, actions, errs []string) {
			fmt.Printf("%s: %d actions, %d errors\n", label, len(actions), len(errs))
			for _, a := range actions {
				fmt.Printf("  - %s\n", a)
			}
			for _, e := range errs {
				fmt.Printf("  ! %s\n", e)
			}
		}
		printPhase("improve", report.Improve.Actions, report.Improve.Errors)
		printPhase("optimize", report.Optimize.Actions, report.Optimize.Errors)
		printPhase("evolve", report.Evolve.Actions, report.Evolve.Errors)
	})
}

func runLifecycleStatus(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	running := o.cycle.Status()
	history := o.cycle.History()
	recs := o.cycle.Recommendations()

	payload := struct {
		Running         bool
		History         []lifecycle.CycleReport
		Recommendations []lifecycle.Recommendation
	}{running, history, recs}

	return printResult(os.Stdout, payload, func() {
		fmt.Printf("running: %v\n", running)
		fmt.Printf("history: %d cycles recorded\n", len(history))
		for _, r := range recs {
			fmt.Printf("[%s] %s\n", r.Priority, r.Message)
		}
	})
}
