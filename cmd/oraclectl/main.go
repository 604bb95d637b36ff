// Package main implements oraclectl, the Remembrance Oracle's operator
// CLI: a thin cobra front-end over the Resolver, Search Engine, Lifecycle
// Engine, and Federation Node. Output is plain text or JSON (--json); no
// TUI or colorized rendering is attempted (operator CLI UI chrome beyond
// plumbing these operations is out of scope).
//
// # File Index
//
// Entry Point & Global State:
//   - main.go        - rootCmd, global flags, init()
//   - wiring.go      - component wiring (openOracle, buildGenerator)
//   - output.go      - plain/JSON output helpers (printResult)
//
// Commands:
//   - cmd_search.go    - searchCmd
//   - cmd_resolve.go   - resolveCmd
//   - cmd_register.go  - registerCmd, voteCmd
//   - cmd_lifecycle.go - lifecycleRunCmd, lifecycleStatusCmd
//   - cmd_federation.go - syncCmd, shareCmd, pullCommunityCmd, remoteSearchCmd
//   - cmd_stats.go     - statsCmd
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/remembrance-oracle/oracle-core/internal/config"
	"github.com/remembrance-oracle/oracle-core/internal/logging"
)

var (
	configPath string
	jsonOut    bool
	verbose    bool
	timeout    time.Duration

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "oraclectl",
	Short: "Remembrance Oracle operator CLI",
	Long: `oraclectl operates a local Remembrance Oracle: a self-managing
library of proven code patterns with a coherency evaluator, a hybrid
search engine, a PULL/EVOLVE/GENERATE resolver, a self-healing reflector
loop, a lifecycle engine, and federation with other Oracle nodes.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded

		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		}
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		root := cfg.Store.RootDir
		if root == "" {
			root = ".remembrance"
		}
		if abs, err := filepath.Abs(root); err == nil {
			root = abs
		}
		if err := logging.Initialize(root, verbose, cfg.Logging.Level, cfg.Logging.JSON); err != nil {
			fmt.Fprintf(os.Stderr, "warning: file logging not initialized: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "oracle.yaml", "Path to config YAML (missing file falls back to defaults)")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of plain text")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "Operation timeout")

	rootCmd.AddCommand(
		searchCmd,
		resolveCmd,
		registerCmd,
		voteCmd,
		lifecycleCmd,
		syncCmd,
		shareCmd,
		pullCommunityCmd,
		remoteSearchCmd,
		statsCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
