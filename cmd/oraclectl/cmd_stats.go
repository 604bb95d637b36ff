package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show local library statistics",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	stats, err := o.local.Stats()
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	counters, err := o.local.Counters()
	if err != nil {
		return fmt.Errorf("counters: %w", err)
	}

	payload := struct {
		Total        int
		AvgCoherency float64
		ByLanguage   map[string]int
		Counters     any
	}{
		Total: stats.Total, AvgCoherency: stats.AvgCoherency,
		ByLanguage: map[string]int{},
		Counters:   counters,
	}
	for lang, n := range stats.ByLanguage {
		payload.ByLanguage[string(lang)] = n
	}

	return printResult(os.Stdout, payload, func() {
		fmt.Printf("total patterns: %d\n", stats.Total)
		fmt.Printf("avg coherency:  %.3f\n", stats.AvgCoherency)
		for lang, n := range stats.ByLanguage {
			fmt.Printf("  %-12s %d\n", lang, n)
		}
	})
}
