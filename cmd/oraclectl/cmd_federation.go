package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/remembrance-oracle/oracle-core/internal/federation"
	"github.com/remembrance-oracle/oracle-core/internal/search"
	"github.com/remembrance-oracle/oracle-core/internal/types"
)

var (
	syncDirection string
	syncDryRun    bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync patterns between the local and personal stores",
	RunE:  runSync,
}

var (
	shareMinCoherency float64
)

var shareCmd = &cobra.Command{
	Use:   "share",
	Short: "Push qualifying local patterns to the community store",
	RunE:  runShare,
}

var (
	pullLanguage string
	pullMax      int
)

var pullCommunityCmd = &cobra.Command{
	Use:   "pull-community",
	Short: "Pull community patterns into the local store",
	RunE:  runPullCommunity,
}

var remoteSearchLanguage string

var remoteSearchCmd = &cobra.Command{
	Use:   "remote-search [query]",
	Short: "Fan a search out across local and registered remotes",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemoteSearch,
}

func init() {
	syncCmd.Flags().StringVar(&syncDirection, "direction", "both", "push, pull, or both")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Report without writing")

	shareCmd.Flags().Float64Var(&shareMinCoherency, "min-coherency", 0, "Minimum coherency to share (default 0.7)")

	pullCommunityCmd.Flags().StringVar(&pullLanguage, "language", "", "Restrict to a language")
	pullCommunityCmd.Flags().IntVar(&pullMax, "max", 0, "Maximum patterns to pull (0 = all)")

	remoteSearchCmd.Flags().StringVar(&remoteSearchLanguage, "language", "", "Restrict to a language")
}

func runSync(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	report, err := o.node.Sync(ctx, federation.Direction(syncDirection), syncDryRun)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	return printResult(os.Stdout, report, func() {
		fmt.Printf("pushed=%d pulled=%d dryRun=%v skipped=%d\n", report.Pushed, report.Pulled, report.DryRun, len(report.Skipped))
		for _, s := range report.Skipped {
			fmt.Printf("  ! %s\n", s)
		}
	})
}

func runShare(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	n, err := o.node.Share(ctx, federation.ShareOptions{MinCoherency: shareMinCoherency})
	if err != nil {
		return fmt.Errorf("share: %w", err)
	}

	return printResult(os.Stdout, map[string]int{"shared": n}, func() {
		fmt.Printf("shared %d patterns to community\n", n)
	})
}

func runPullCommunity(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	n, err := o.node.PullCommunity(ctx, federation.PullOptions{Language: types.Language(pullLanguage), MaxPull: pullMax})
	if err != nil {
		return fmt.Errorf("pull-community: %w", err)
	}

	return printResult(os.Stdout, map[string]int{"pulled": n}, func() {
		fmt.Printf("pulled %d patterns from community\n", n)
	})
}

func runRemoteSearch(cmd *cobra.Command, args []string) error {
	o, err := openOracle(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	results, err := o.node.RemoteSearch(ctx, args[0], search.Options{Language: types.Language(remoteSearchLanguage)})
	if err != nil {
		return fmt.Errorf("remote-search: %w", err)
	}

	return printResult(os.Stdout, results, func() {
		for _, r := range results {
			status := "ok"
			if r.Err != nil {
				status = r.Err.Error()
			}
			fmt.Printf("[%s] %dms %d hits (%s)\n", r.PeerName, r.LatencyMs, len(r.Results), status)
		}
	})
}
